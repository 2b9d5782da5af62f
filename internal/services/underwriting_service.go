package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"underwriting-service/internal/event"
	"underwriting-service/internal/ledger"
	"underwriting-service/internal/models"
	"underwriting-service/internal/worker"

	"github.com/google/uuid"
)

const (
	eventPublishTimeout = 5 * time.Second
	snapshotLinkExpiry  = 15 * time.Minute
)

var (
	ErrAdminNotConfigured = errors.New("no administrator persisted and UNDERWRITING_ADMIN is not set")
	ErrArchiveUnavailable = errors.New("snapshot archive is not configured")
)

// LedgerStore is the durable side of the ledger.
type LedgerStore interface {
	ledger.Journal
	EnsureAdmin(ctx context.Context, admin ledger.Principal) error
	LoadState(ctx context.Context) (*ledger.State, error)
}

type PremiumCache interface {
	GetQuote(ctx context.Context, version uint64, key ledger.ScoreKey) (*ledger.Quote, error)
	SetQuote(ctx context.Context, quote ledger.Quote) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt event.LedgerEvent) error
}

type JobSubmitter interface {
	SubmitJob(job worker.Job) error
}

type SnapshotArchive interface {
	PutSnapshot(ctx context.Context, objectName string, data []byte) error
	ListSnapshots(ctx context.Context) ([]string, error)
	GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// UnderwritingService hosts the ledger. Every dependency except the ledger
// itself is optional; a nil cache, publisher or archive disables that
// feature without affecting ledger semantics.
type UnderwritingService struct {
	ledger     *ledger.Ledger
	store      LedgerStore
	cache      PremiumCache
	publisher  EventPublisher
	dispatcher JobSubmitter
	archive    SnapshotArchive
}

func NewUnderwritingService(
	store LedgerStore,
	cache PremiumCache,
	publisher EventPublisher,
	dispatcher JobSubmitter,
	archive SnapshotArchive,
) *UnderwritingService {
	return &UnderwritingService{
		store:      store,
		cache:      cache,
		publisher:  publisher,
		dispatcher: dispatcher,
		archive:    archive,
	}
}

// Load rebuilds the ledger from the store. initialAdmin is only used the
// first time, when nothing has been persisted.
func (s *UnderwritingService) Load(ctx context.Context, initialAdmin string) error {
	journal := ledger.WithJournal(ledger.JournalFunc(s.record))

	if s.store == nil {
		if initialAdmin == "" {
			return ErrAdminNotConfigured
		}
		s.ledger = ledger.New(ledger.Principal(initialAdmin), journal)
		slog.Warn("underwriting ledger running without persistence", "admin", initialAdmin)
		return nil
	}

	state, err := s.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger state: %w", err)
	}

	if state == nil {
		if initialAdmin == "" {
			return ErrAdminNotConfigured
		}
		admin := ledger.Principal(initialAdmin)
		if err := s.store.EnsureAdmin(ctx, admin); err != nil {
			return err
		}
		state = &ledger.State{Admin: admin}
		slog.Info("underwriting ledger initialized", "admin", admin)
	}

	s.ledger = ledger.Restore(*state, journal)
	slog.Info("underwriting ledger loaded", "admin", state.Admin, "version", state.Version)
	return nil
}

// record runs inside the ledger lock once a change has passed validation.
func (s *UnderwritingService) record(ctx context.Context, change ledger.Change) error {
	if s.store != nil {
		if err := s.store.Append(ctx, change); err != nil {
			return err
		}
	}
	s.dispatchEvent(change)
	return nil
}

func (s *UnderwritingService) dispatchEvent(change ledger.Change) {
	if s.publisher == nil {
		return
	}

	evt := event.NewLedgerEvent(change)
	publish := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
		defer cancel()
		return s.publisher.Publish(ctx, evt)
	}

	if s.dispatcher == nil {
		if err := publish(context.Background()); err != nil {
			slog.Error("failed to publish ledger event", "event_type", evt.EventType, "version", evt.Version, "error", err)
		}
		return
	}

	if err := s.dispatcher.SubmitJob(publish); err != nil {
		slog.Error("ledger event dropped", "event_type", evt.EventType, "version", evt.Version, "error", err)
	}
}

func logRejection(operation string, caller ledger.Principal, err error) {
	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		slog.Warn("underwriting operation rejected", "operation", operation, "caller", caller, "code", ledgerErr.Code())
		return
	}
	slog.Error("underwriting operation failed", "operation", operation, "caller", caller, "error", err)
}

func (s *UnderwritingService) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *UnderwritingService) IsAdmin(caller ledger.Principal) bool {
	return s.ledger.IsAdmin(caller)
}

func (s *UnderwritingService) GetAdmin() models.AdminResponse {
	return models.AdminResponse{
		Admin:   string(s.ledger.Admin()),
		Version: s.ledger.Version(),
	}
}

// ============================================================================
// MUTATIONS
// ============================================================================

func (s *UnderwritingService) SetBasePremiumTier(ctx context.Context, caller ledger.Principal, tier int, rateBps int64) error {
	if err := s.ledger.SetBasePremiumTier(ctx, caller, tier, rateBps); err != nil {
		logRejection("set_base_premium_tier", caller, err)
		return err
	}
	slog.Info("premium tier rate set", "tier", tier, "rate_bps", rateBps)
	return nil
}

func (s *UnderwritingService) SetPremiumDiscount(ctx context.Context, caller, farmerID ledger.Principal, discountBps int64) error {
	if err := s.ledger.SetPremiumDiscount(ctx, caller, farmerID, discountBps); err != nil {
		logRejection("set_premium_discount", caller, err)
		return err
	}
	slog.Info("premium discount set", "farmer_id", farmerID, "discount_bps", discountBps)
	return nil
}

func (s *UnderwritingService) SubmitRiskScore(ctx context.Context, caller ledger.Principal, key ledger.ScoreKey, score int) error {
	if err := s.ledger.SubmitRiskScore(ctx, caller, key, score); err != nil {
		logRejection("submit_risk_score", caller, err)
		return err
	}
	slog.Info("risk score submitted",
		"farmer_id", key.FarmerID,
		"crop_type", key.CropType,
		"season", key.Season,
		"score", score)
	return nil
}

func (s *UnderwritingService) MarkPolicySubmitted(ctx context.Context, caller ledger.Principal, key ledger.SubmissionKey) error {
	if err := s.ledger.MarkPolicySubmitted(ctx, caller, key); err != nil {
		logRejection("mark_policy_submitted", caller, err)
		return err
	}
	slog.Info("policy marked submitted", "farmer_id", key.FarmerID, "season", key.Season)
	return nil
}

func (s *UnderwritingService) TransferAdmin(ctx context.Context, caller, newAdmin ledger.Principal) error {
	if err := s.ledger.TransferAdmin(ctx, caller, newAdmin); err != nil {
		logRejection("transfer_admin", caller, err)
		return err
	}
	slog.Info("administrator transferred", "from", caller, "to", newAdmin)
	return nil
}

// ============================================================================
// QUERIES
// ============================================================================

func (s *UnderwritingService) GetBasePremium(score int) (models.BasePremiumResponse, error) {
	rate, err := s.ledger.GetBasePremium(score)
	if err != nil {
		return models.BasePremiumResponse{}, err
	}
	// GetBasePremium already rejected out-of-range scores
	tier, _ := ledger.TierForScore(score)
	return models.BasePremiumResponse{Score: score, Tier: tier, RateBps: rate}, nil
}

// CalculateFinalPremium serves from the cache when a quote for the current
// ledger version exists. Cache failures fall back to the ledger.
func (s *UnderwritingService) CalculateFinalPremium(ctx context.Context, key ledger.ScoreKey) (ledger.Quote, error) {
	if s.cache != nil {
		cached, err := s.cache.GetQuote(ctx, s.ledger.Version(), key)
		if err != nil {
			slog.Warn("premium cache read failed", "error", err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	quote, err := s.ledger.Quote(key)
	if err != nil {
		return ledger.Quote{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, quote); err != nil {
			slog.Warn("premium cache write failed", "error", err)
		}
	}
	return quote, nil
}

func (s *UnderwritingService) GetRiskScore(key ledger.ScoreKey) (models.RiskScoreResponse, error) {
	score, ok := s.ledger.RiskScore(key)
	if !ok {
		return models.RiskScoreResponse{}, ledger.ErrScoreNotFound
	}
	return models.RiskScoreResponse{
		FarmerID: string(key.FarmerID),
		CropType: key.CropType,
		Season:   key.Season,
		Score:    score,
	}, nil
}

func (s *UnderwritingService) GetDiscount(farmerID ledger.Principal) models.DiscountResponse {
	return models.DiscountResponse{
		FarmerID:    string(farmerID),
		DiscountBps: s.ledger.Discount(farmerID),
	}
}

func (s *UnderwritingService) ListTiers() []ledger.TierRate {
	return s.ledger.Tiers()
}

func (s *UnderwritingService) HasSubmittedPolicy(key ledger.SubmissionKey) models.PolicySubmissionResponse {
	return models.PolicySubmissionResponse{
		FarmerID:  string(key.FarmerID),
		Season:    key.Season,
		Submitted: s.ledger.HasSubmittedPolicy(key),
	}
}

// ExportSnapshot uploads the current ledger state to the archive. Only the
// administrator may export.
func (s *UnderwritingService) ExportSnapshot(ctx context.Context, caller ledger.Principal) (models.SnapshotResponse, error) {
	if !s.ledger.IsAdmin(caller) {
		logRejection("export_snapshot", caller, ledger.ErrNotAdmin)
		return models.SnapshotResponse{}, ledger.ErrNotAdmin
	}
	if s.archive == nil {
		return models.SnapshotResponse{}, ErrArchiveUnavailable
	}

	state := s.ledger.Snapshot()
	data, err := json.Marshal(state)
	if err != nil {
		return models.SnapshotResponse{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	createdAt := time.Now().UTC()
	objectName := fmt.Sprintf("%s/v%d-%s.json", createdAt.Format("2006-01-02"), state.Version, uuid.NewString())
	if err := s.archive.PutSnapshot(ctx, objectName, data); err != nil {
		return models.SnapshotResponse{}, err
	}

	slog.Info("ledger snapshot exported", "object", objectName, "version", state.Version)
	return models.SnapshotResponse{
		ObjectName: objectName,
		Version:    state.Version,
		CreatedAt:  createdAt,
	}, nil
}

// ListSnapshots returns every archived snapshot with a short-lived download
// link. Only the administrator may list.
func (s *UnderwritingService) ListSnapshots(ctx context.Context, caller ledger.Principal) ([]models.SnapshotLink, error) {
	if !s.ledger.IsAdmin(caller) {
		logRejection("list_snapshots", caller, ledger.ErrNotAdmin)
		return nil, ledger.ErrNotAdmin
	}
	if s.archive == nil {
		return nil, ErrArchiveUnavailable
	}

	names, err := s.archive.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	links := make([]models.SnapshotLink, 0, len(names))
	for _, name := range names {
		url, err := s.archive.GetPresignedURL(ctx, name, snapshotLinkExpiry)
		if err != nil {
			return nil, err
		}
		links = append(links, models.SnapshotLink{ObjectName: name, URL: url, ExpiresIn: int(snapshotLinkExpiry.Seconds())})
	}
	return links, nil
}
