package event

import (
	"time"

	"underwriting-service/internal/ledger"

	"github.com/google/uuid"
)

const (
	UnderwritingQueue           = "underwriting_events"
	UnderwritingDeadLetterQueue = "underwriting_events.dlq"
)

// LedgerEvent is the message published for every accepted ledger change.
type LedgerEvent struct {
	EventID    uuid.UUID         `json:"event_id"`
	EventType  ledger.ChangeType `json:"event_type"`
	Caller     string            `json:"caller"`
	Version    uint64            `json:"version"`
	Payload    map[string]any    `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewLedgerEvent builds the message for a change. The payload only carries
// the fields meaningful for the change type.
func NewLedgerEvent(change ledger.Change) LedgerEvent {
	payload := map[string]any{}
	switch change.Type {
	case ledger.ChangeTierRateSet:
		payload["tier"] = change.Tier
		payload["rate_bps"] = change.RateBps
	case ledger.ChangeDiscountSet:
		payload["farmer_id"] = string(change.FarmerID)
		payload["discount_bps"] = change.DiscountBps
	case ledger.ChangeRiskScoreSubmitted:
		payload["farmer_id"] = string(change.FarmerID)
		payload["crop_type"] = change.CropType
		payload["season"] = change.Season
		payload["score"] = change.Score
	case ledger.ChangePolicySubmitted:
		payload["farmer_id"] = string(change.FarmerID)
		payload["season"] = change.Season
	case ledger.ChangeAdminTransferred:
		payload["new_admin"] = string(change.NewAdmin)
	}

	return LedgerEvent{
		EventID:    uuid.New(),
		EventType:  change.Type,
		Caller:     string(change.Caller),
		Version:    change.Version,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}
