package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LedgerPublisher publishes ledger events to the queue declared on conn.
type LedgerPublisher struct {
	conn *RabbitMQConnection

	mu                sync.Mutex
	messagesPublished int64
	messagesFailed    int64
	lastPublishTime   time.Time
}

func NewLedgerPublisher(conn *RabbitMQConnection) *LedgerPublisher {
	return &LedgerPublisher{
		conn:            conn,
		lastPublishTime: time.Now(),
	}
}

// Publish sends one event as a persistent JSON message. amqp channels are not
// safe for concurrent publishing, so calls are serialized.
func (p *LedgerPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := json.Marshal(event)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to marshal ledger event: %w", err)
	}

	err = p.conn.Channel.PublishWithContext(
		ctx,
		"",           // exchange
		p.conn.Queue, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.EventID.String(),
			Type:         string(event.EventType),
			Body:         body,
			Timestamp:    event.OccurredAt,
		},
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to publish ledger event: %w", err)
	}

	p.messagesPublished++
	p.lastPublishTime = time.Now()

	slog.Info("Ledger event published",
		"queue", p.conn.Queue,
		"event_type", event.EventType,
		"version", event.Version,
	)
	return nil
}

// HealthCheck returns the health status of the publisher
func (p *LedgerPublisher) HealthCheck() PublisherHealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PublisherHealthStatus{
		IsHealthy:         p.conn.Healthy(),
		MessagesPublished: p.messagesPublished,
		MessagesFailed:    p.messagesFailed,
		LastPublishTime:   p.lastPublishTime,
		Queue:             p.conn.Queue,
	}
}

type PublisherHealthStatus struct {
	IsHealthy         bool      `json:"is_healthy"`
	MessagesPublished int64     `json:"messages_published"`
	MessagesFailed    int64     `json:"messages_failed"`
	LastPublishTime   time.Time `json:"last_publish_time"`
	Queue             string    `json:"queue"`
}
