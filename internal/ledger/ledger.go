// Package ledger holds the underwriting rules: who may configure premiums,
// how risk scores are recorded and how a final premium is derived from them.
//
// The ledger performs no I/O of its own. Durability is plugged in through a
// Journal, which sees every change after validation and before it is applied.
package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Principal is an opaque, already-authenticated caller or farmer identity.
type Principal string

// ScoreKey identifies a single risk assessment.
type ScoreKey struct {
	FarmerID Principal
	CropType string
	Season   string
}

// SubmissionKey identifies a farmer's policy submission for one season.
type SubmissionKey struct {
	FarmerID Principal
	Season   string
}

type ChangeType string

const (
	ChangeTierRateSet        ChangeType = "tier_rate_set"
	ChangeDiscountSet        ChangeType = "discount_set"
	ChangeRiskScoreSubmitted ChangeType = "risk_score_submitted"
	ChangePolicySubmitted    ChangeType = "policy_submitted"
	ChangeAdminTransferred   ChangeType = "admin_transferred"
)

// Change describes one accepted mutation. Only the fields relevant to Type
// are set, but numeric values are always encoded so a written zero stays
// visible in the change log. Version is the ledger version once the change
// is applied.
type Change struct {
	Type        ChangeType `json:"type"`
	Caller      Principal  `json:"caller"`
	Version     uint64     `json:"version"`
	Tier        int        `json:"tier"`
	RateBps     int64      `json:"rate_bps"`
	FarmerID    Principal  `json:"farmer_id,omitempty"`
	DiscountBps int64      `json:"discount_bps"`
	CropType    string     `json:"crop_type,omitempty"`
	Season      string     `json:"season,omitempty"`
	Score       int        `json:"score"`
	NewAdmin    Principal  `json:"new_admin,omitempty"`
}

// Journal records changes before they take effect in memory. A failed Append
// aborts the change.
type Journal interface {
	Append(ctx context.Context, change Change) error
}

// JournalFunc adapts a function to the Journal interface.
type JournalFunc func(ctx context.Context, change Change) error

func (f JournalFunc) Append(ctx context.Context, change Change) error {
	return f(ctx, change)
}

type Option func(*Ledger)

func WithJournal(j Journal) Option {
	return func(l *Ledger) {
		l.journal = j
	}
}

// Ledger is safe for concurrent use; one lock covers every table so that a
// premium calculation sees a single consistent state.
type Ledger struct {
	mu          sync.RWMutex
	admin       Principal
	tiers       map[int]int64
	discounts   map[Principal]int64
	scores      map[ScoreKey]int
	submissions map[SubmissionKey]bool
	version     uint64
	journal     Journal
}

func New(admin Principal, opts ...Option) *Ledger {
	l := &Ledger{
		admin:       admin,
		tiers:       make(map[int]int64),
		discounts:   make(map[Principal]int64),
		scores:      make(map[ScoreKey]int),
		submissions: make(map[SubmissionKey]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsAdmin reports whether caller is the current administrator.
func (l *Ledger) IsAdmin(caller Principal) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return caller == l.admin
}

func (l *Ledger) Admin() Principal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admin
}

// Version increases by one with every accepted mutation.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// commit must be called with the write lock held and only after every check
// has passed.
func (l *Ledger) commit(ctx context.Context, change Change, apply func()) error {
	change.Version = l.version + 1
	if l.journal != nil {
		if err := l.journal.Append(ctx, change); err != nil {
			return fmt.Errorf("failed to journal %s: %w", change.Type, err)
		}
	}
	apply()
	l.version = change.Version
	return nil
}

// SetBasePremiumTier upserts the rate for a tier. Tiers outside 1-5 are
// stored but can never be reached by a score.
func (l *Ledger) SetBasePremiumTier(ctx context.Context, caller Principal, tier int, rateBps int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}

	change := Change{Type: ChangeTierRateSet, Caller: caller, Tier: tier, RateBps: rateBps}
	return l.commit(ctx, change, func() {
		l.tiers[tier] = rateBps
	})
}

// SetPremiumDiscount replaces the farmer's discount. The value is not capped
// here; the premium floor is applied when the premium is calculated.
func (l *Ledger) SetPremiumDiscount(ctx context.Context, caller, farmerID Principal, discountBps int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}

	change := Change{Type: ChangeDiscountSet, Caller: caller, FarmerID: farmerID, DiscountBps: discountBps}
	return l.commit(ctx, change, func() {
		l.discounts[farmerID] = discountBps
	})
}

// SubmitRiskScore records a score once per (farmer, crop, season). The checks
// run in a fixed order: admin, duplicate, range.
func (l *Ledger) SubmitRiskScore(ctx context.Context, caller Principal, key ScoreKey, score int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}
	if _, exists := l.scores[key]; exists {
		return ErrScoreAlreadySubmitted
	}
	if score > MaxScore {
		return ErrScoreOutOfRange
	}

	change := Change{
		Type:     ChangeRiskScoreSubmitted,
		Caller:   caller,
		FarmerID: key.FarmerID,
		CropType: key.CropType,
		Season:   key.Season,
		Score:    score,
	}
	return l.commit(ctx, change, func() {
		l.scores[key] = score
	})
}

// MarkPolicySubmitted sets the submission flag. Marking twice is not an error.
func (l *Ledger) MarkPolicySubmitted(ctx context.Context, caller Principal, key SubmissionKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}

	change := Change{Type: ChangePolicySubmitted, Caller: caller, FarmerID: key.FarmerID, Season: key.Season}
	return l.commit(ctx, change, func() {
		l.submissions[key] = true
	})
}

func (l *Ledger) HasSubmittedPolicy(key SubmissionKey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.submissions[key]
}

// TransferAdmin hands every mutation right to newAdmin immediately.
func (l *Ledger) TransferAdmin(ctx context.Context, caller, newAdmin Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}

	change := Change{Type: ChangeAdminTransferred, Caller: caller, NewAdmin: newAdmin}
	return l.commit(ctx, change, func() {
		l.admin = newAdmin
	})
}

// RiskScore returns the recorded score, if any.
func (l *Ledger) RiskScore(key ScoreKey) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	score, ok := l.scores[key]
	return score, ok
}

// TierRate returns the configured rate. Absence is reported, not defaulted.
func (l *Ledger) TierRate(tier int) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rate, ok := l.tiers[tier]
	return rate, ok
}

// Discount returns the farmer's discount, 0 when none was set.
func (l *Ledger) Discount(farmerID Principal) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.discounts[farmerID]
}
