package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"underwriting-service/internal/ledger"
	"underwriting-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// UnderwritingRepository persists ledger changes and reloads the ledger on
// startup. It is the ledger's Journal.
type UnderwritingRepository struct {
	db *sqlx.DB
}

func NewUnderwritingRepository(db *sqlx.DB) *UnderwritingRepository {
	return &UnderwritingRepository{db: db}
}

// EnsureAdmin seeds the administrator row if the ledger has never been
// initialized. An existing administrator is left untouched.
func (r *UnderwritingRepository) EnsureAdmin(ctx context.Context, admin ledger.Principal) error {
	query := `
		INSERT INTO underwriting_admin (id, admin_id, version, updated_at)
		VALUES (1, $1, 0, NOW())
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, string(admin)); err != nil {
		return fmt.Errorf("failed to seed administrator: %w", err)
	}
	return nil
}

// Append writes one change and its log entry in a single transaction.
func (r *UnderwritingRepository) Append(ctx context.Context, change ledger.Change) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := applyChange(ctx, tx, change); err != nil {
		return err
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_changes (version, change_type, caller, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		int64(change.Version), string(change.Type), string(change.Caller), string(payload))
	if err != nil {
		return fmt.Errorf("failed to append ledger change: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE underwriting_admin SET version = $1, updated_at = NOW() WHERE id = 1`,
		int64(change.Version))
	if err != nil {
		return fmt.Errorf("failed to bump ledger version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger change: %w", err)
	}

	slog.Info("ledger change persisted", "type", change.Type, "version", change.Version)
	return nil
}

func applyChange(ctx context.Context, tx *sqlx.Tx, change ledger.Change) error {
	switch change.Type {
	case ledger.ChangeTierRateSet:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO premium_tiers (tier, rate_bps, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (tier) DO UPDATE SET rate_bps = EXCLUDED.rate_bps, updated_at = NOW()`,
			change.Tier, change.RateBps)
		if err != nil {
			return fmt.Errorf("failed to upsert premium tier: %w", err)
		}

	case ledger.ChangeDiscountSet:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO premium_discounts (farmer_id, discount_bps, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (farmer_id) DO UPDATE SET discount_bps = EXCLUDED.discount_bps, updated_at = NOW()`,
			string(change.FarmerID), change.DiscountBps)
		if err != nil {
			return fmt.Errorf("failed to upsert premium discount: %w", err)
		}

	case ledger.ChangeRiskScoreSubmitted:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO risk_scores (farmer_id, crop_type, season, score, submitted_by, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())`,
			string(change.FarmerID), change.CropType, change.Season, change.Score, string(change.Caller))
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return ledger.ErrScoreAlreadySubmitted
			}
			return fmt.Errorf("failed to insert risk score: %w", err)
		}

	case ledger.ChangePolicySubmitted:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO policy_submissions (farmer_id, season, marked_by, marked_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (farmer_id, season) DO NOTHING`,
			string(change.FarmerID), change.Season, string(change.Caller))
		if err != nil {
			return fmt.Errorf("failed to mark policy submitted: %w", err)
		}

	case ledger.ChangeAdminTransferred:
		result, err := tx.ExecContext(ctx, `UPDATE underwriting_admin SET admin_id = $1, updated_at = NOW() WHERE id = 1`,
			string(change.NewAdmin))
		if err != nil {
			return fmt.Errorf("failed to transfer administrator: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return errors.New("administrator row not found")
		}

	default:
		return fmt.Errorf("unknown change type %q", change.Type)
	}
	return nil
}

// LoadState returns nil when no administrator has been seeded yet.
func (r *UnderwritingRepository) LoadState(ctx context.Context) (*ledger.State, error) {
	var admin models.AdminRow
	err := r.db.GetContext(ctx, &admin, `SELECT admin_id, version, updated_at FROM underwriting_admin WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load administrator: %w", err)
	}

	var tiers []models.PremiumTierRow
	if err := r.db.SelectContext(ctx, &tiers, `SELECT tier, rate_bps FROM premium_tiers ORDER BY tier`); err != nil {
		return nil, fmt.Errorf("failed to load premium tiers: %w", err)
	}

	var discounts []models.PremiumDiscountRow
	if err := r.db.SelectContext(ctx, &discounts, `SELECT farmer_id, discount_bps FROM premium_discounts ORDER BY farmer_id`); err != nil {
		return nil, fmt.Errorf("failed to load premium discounts: %w", err)
	}

	var scores []models.RiskScoreRow
	if err := r.db.SelectContext(ctx, &scores, `SELECT farmer_id, crop_type, season, score FROM risk_scores ORDER BY farmer_id, crop_type, season`); err != nil {
		return nil, fmt.Errorf("failed to load risk scores: %w", err)
	}

	var submissions []models.PolicySubmissionRow
	if err := r.db.SelectContext(ctx, &submissions, `SELECT farmer_id, season FROM policy_submissions ORDER BY farmer_id, season`); err != nil {
		return nil, fmt.Errorf("failed to load policy submissions: %w", err)
	}

	state := &ledger.State{
		Admin:       ledger.Principal(admin.AdminID),
		Version:     admin.Version,
		Tiers:       make([]ledger.TierRate, 0, len(tiers)),
		Discounts:   make([]ledger.Discount, 0, len(discounts)),
		RiskScores:  make([]ledger.RiskScore, 0, len(scores)),
		Submissions: make([]ledger.PolicySubmission, 0, len(submissions)),
	}
	for _, t := range tiers {
		state.Tiers = append(state.Tiers, ledger.TierRate{Tier: t.Tier, RateBps: t.RateBps})
	}
	for _, d := range discounts {
		state.Discounts = append(state.Discounts, ledger.Discount{FarmerID: ledger.Principal(d.FarmerID), DiscountBps: d.DiscountBps})
	}
	for _, s := range scores {
		state.RiskScores = append(state.RiskScores, ledger.RiskScore{
			FarmerID: ledger.Principal(s.FarmerID),
			CropType: s.CropType,
			Season:   s.Season,
			Score:    s.Score,
		})
	}
	for _, p := range submissions {
		state.Submissions = append(state.Submissions, ledger.PolicySubmission{FarmerID: ledger.Principal(p.FarmerID), Season: p.Season})
	}

	slog.Info("ledger state loaded",
		"admin", state.Admin,
		"version", state.Version,
		"tiers", len(state.Tiers),
		"risk_scores", len(state.RiskScores))
	return state, nil
}
