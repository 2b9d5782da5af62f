package event

import (
	"fmt"
	"log/slog"

	"underwriting-service/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConnection is a channel on which the ledger queues have already
// been declared, so publishers can send without further setup.
type RabbitMQConnection struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
	Queue      string
}

func amqpURL(cfg config.RabbitMQConfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.Username, cfg.Password, cfg.Host, cfg.Port)
}

// ledgerQueueArgs routes rejected ledger events to the dead letter queue
// instead of dropping them.
func ledgerQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": UnderwritingDeadLetterQueue,
	}
}

// declareLedgerQueues is idempotent; redeclaring with the same arguments is a
// no-op on the broker.
func declareLedgerQueues(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		UnderwritingDeadLetterQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare %s: %w", UnderwritingDeadLetterQueue, err)
	}

	if _, err := ch.QueueDeclare(
		UnderwritingQueue,
		true,
		false,
		false,
		false,
		ledgerQueueArgs(),
	); err != nil {
		return fmt.Errorf("failed to declare %s: %w", UnderwritingQueue, err)
	}
	return nil
}

// ConnectRabbitMQ dials the broker and declares the underwriting event
// queues before returning.
func ConnectRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQConnection, error) {
	conn, err := amqp.Dial(amqpURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareLedgerQueues(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	slog.Info("connected to RabbitMQ", "host", cfg.Host, "port", cfg.Port,
		"queue", UnderwritingQueue, "dead_letter_queue", UnderwritingDeadLetterQueue)

	return &RabbitMQConnection{
		Connection: conn,
		Channel:    ch,
		Queue:      UnderwritingQueue,
	}, nil
}

// Healthy reports whether the broker connection is still open.
func (r *RabbitMQConnection) Healthy() bool {
	return r != nil && r.Connection != nil && !r.Connection.IsClosed()
}

func (r *RabbitMQConnection) Close() error {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			slog.Error("failed to close RabbitMQ channel", "error", err)
		}
	}
	if r.Connection != nil {
		if err := r.Connection.Close(); err != nil {
			slog.Error("failed to close RabbitMQ connection", "error", err)
			return err
		}
	}
	slog.Info("RabbitMQ connection closed")
	return nil
}
