package models

import "time"

// ============================================================================
// PERSISTED LEDGER ROWS
// ============================================================================

type AdminRow struct {
	AdminID   string    `db:"admin_id"`
	Version   uint64    `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

type PremiumTierRow struct {
	Tier    int   `db:"tier"`
	RateBps int64 `db:"rate_bps"`
}

type PremiumDiscountRow struct {
	FarmerID    string `db:"farmer_id"`
	DiscountBps int64  `db:"discount_bps"`
}

type RiskScoreRow struct {
	FarmerID string `db:"farmer_id"`
	CropType string `db:"crop_type"`
	Season   string `db:"season"`
	Score    int    `db:"score"`
}

type PolicySubmissionRow struct {
	FarmerID string `db:"farmer_id"`
	Season   string `db:"season"`
}

// ============================================================================
// RESPONSES
// ============================================================================

type RiskScoreResponse struct {
	FarmerID string `json:"farmer_id"`
	CropType string `json:"crop_type"`
	Season   string `json:"season"`
	Score    int    `json:"score"`
}

type BasePremiumResponse struct {
	Score   int   `json:"score"`
	Tier    int   `json:"tier"`
	RateBps int64 `json:"rate_bps"`
}

type DiscountResponse struct {
	FarmerID    string `json:"farmer_id"`
	DiscountBps int64  `json:"discount_bps"`
}

type PolicySubmissionResponse struct {
	FarmerID  string `json:"farmer_id"`
	Season    string `json:"season"`
	Submitted bool   `json:"submitted"`
}

type AdminResponse struct {
	Admin   string `json:"admin"`
	Version uint64 `json:"version"`
}

type SnapshotResponse struct {
	ObjectName string    `json:"object_name"`
	Version    uint64    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

type SnapshotLink struct {
	ObjectName string `json:"object_name"`
	URL        string `json:"url"`
	ExpiresIn  int    `json:"expires_in_seconds"`
}
