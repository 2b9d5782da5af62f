package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Identity values are opaque; only presence and length are checked here.
const maxIdentifierLength = 128

func trimAndValidateString(value, fieldName string, minLen, maxLen int) error {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < minLen {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(trimmed) > maxLen {
		return fmt.Errorf("%s must be %d characters or less", fieldName, maxLen)
	}
	return nil
}

type SetTierRateRequest struct {
	RateBps *int64 `json:"rate_bps"`
}

func (r SetTierRateRequest) Validate() error {
	if r.RateBps == nil {
		return errors.New("rate_bps is required")
	}
	return nil
}

type SetDiscountRequest struct {
	DiscountBps *int64 `json:"discount_bps"`
}

func (r SetDiscountRequest) Validate() error {
	if r.DiscountBps == nil {
		return errors.New("discount_bps is required")
	}
	return nil
}

// ParseScore reads a decimal integer score. Values beyond the int range are
// clamped rather than rejected, so an oversized score still reaches the
// ledger's range check.
func ParseScore(raw string) (int, error) {
	score, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return score, nil
}

type SubmitRiskScoreRequest struct {
	FarmerID string       `json:"farmer_id"`
	CropType string       `json:"crop_type"`
	Season   string       `json:"season"`
	Score    *json.Number `json:"score"`
}

func (r SubmitRiskScoreRequest) ScoreValue() (int, error) {
	if r.Score == nil {
		return 0, errors.New("score is required")
	}
	score, err := ParseScore(r.Score.String())
	if err != nil {
		return 0, errors.New("score must be an integer")
	}
	return score, nil
}

func (r SubmitRiskScoreRequest) Validate() error {
	if err := trimAndValidateString(r.FarmerID, "farmer_id", 1, maxIdentifierLength); err != nil {
		return err
	}
	if err := trimAndValidateString(r.CropType, "crop_type", 1, maxIdentifierLength); err != nil {
		return err
	}
	if err := trimAndValidateString(r.Season, "season", 1, maxIdentifierLength); err != nil {
		return err
	}
	_, err := r.ScoreValue()
	return err
}

type MarkPolicySubmittedRequest struct {
	FarmerID string `json:"farmer_id"`
	Season   string `json:"season"`
}

func (r MarkPolicySubmittedRequest) Validate() error {
	if err := trimAndValidateString(r.FarmerID, "farmer_id", 1, maxIdentifierLength); err != nil {
		return err
	}
	return trimAndValidateString(r.Season, "season", 1, maxIdentifierLength)
}

type TransferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

func (r TransferAdminRequest) Validate() error {
	return trimAndValidateString(r.NewAdmin, "new_admin", 1, maxIdentifierLength)
}
