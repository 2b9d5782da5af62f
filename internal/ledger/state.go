package ledger

import (
	"cmp"
	"slices"
)

type TierRate struct {
	Tier    int   `json:"tier"`
	RateBps int64 `json:"rate_bps"`
}

type Discount struct {
	FarmerID    Principal `json:"farmer_id"`
	DiscountBps int64     `json:"discount_bps"`
}

type RiskScore struct {
	FarmerID Principal `json:"farmer_id"`
	CropType string    `json:"crop_type"`
	Season   string    `json:"season"`
	Score    int       `json:"score"`
}

type PolicySubmission struct {
	FarmerID Principal `json:"farmer_id"`
	Season   string    `json:"season"`
}

// State is a serializable copy of the ledger. Slices are sorted so two
// snapshots of equal ledgers are equal.
type State struct {
	Admin       Principal          `json:"admin"`
	Version     uint64             `json:"version"`
	Tiers       []TierRate         `json:"tiers"`
	Discounts   []Discount         `json:"discounts"`
	RiskScores  []RiskScore        `json:"risk_scores"`
	Submissions []PolicySubmission `json:"policy_submissions"`
}

// Tiers lists configured tier rates ordered by tier.
func (l *Ledger) Tiers() []TierRate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tierList()
}

func (l *Ledger) tierList() []TierRate {
	tiers := make([]TierRate, 0, len(l.tiers))
	for tier, rate := range l.tiers {
		tiers = append(tiers, TierRate{Tier: tier, RateBps: rate})
	}
	slices.SortFunc(tiers, func(a, b TierRate) int { return cmp.Compare(a.Tier, b.Tier) })
	return tiers
}

func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state := State{
		Admin:       l.admin,
		Version:     l.version,
		Tiers:       l.tierList(),
		Discounts:   make([]Discount, 0, len(l.discounts)),
		RiskScores:  make([]RiskScore, 0, len(l.scores)),
		Submissions: make([]PolicySubmission, 0, len(l.submissions)),
	}
	for farmer, bps := range l.discounts {
		state.Discounts = append(state.Discounts, Discount{FarmerID: farmer, DiscountBps: bps})
	}
	for key, score := range l.scores {
		state.RiskScores = append(state.RiskScores, RiskScore{
			FarmerID: key.FarmerID,
			CropType: key.CropType,
			Season:   key.Season,
			Score:    score,
		})
	}
	for key, submitted := range l.submissions {
		if submitted {
			state.Submissions = append(state.Submissions, PolicySubmission{FarmerID: key.FarmerID, Season: key.Season})
		}
	}

	slices.SortFunc(state.Discounts, func(a, b Discount) int { return cmp.Compare(a.FarmerID, b.FarmerID) })
	slices.SortFunc(state.RiskScores, func(a, b RiskScore) int {
		return cmp.Or(
			cmp.Compare(a.FarmerID, b.FarmerID),
			cmp.Compare(a.CropType, b.CropType),
			cmp.Compare(a.Season, b.Season),
		)
	})
	slices.SortFunc(state.Submissions, func(a, b PolicySubmission) int {
		return cmp.Or(cmp.Compare(a.FarmerID, b.FarmerID), cmp.Compare(a.Season, b.Season))
	})
	return state
}

// Restore builds a ledger from a snapshot without going through the journal.
func Restore(state State, opts ...Option) *Ledger {
	l := New(state.Admin, opts...)
	l.version = state.Version
	for _, t := range state.Tiers {
		l.tiers[t.Tier] = t.RateBps
	}
	for _, d := range state.Discounts {
		l.discounts[d.FarmerID] = d.DiscountBps
	}
	for _, r := range state.RiskScores {
		l.scores[ScoreKey{FarmerID: r.FarmerID, CropType: r.CropType, Season: r.Season}] = r.Score
	}
	for _, s := range state.Submissions {
		l.submissions[SubmissionKey{FarmerID: s.FarmerID, Season: s.Season}] = true
	}
	return l
}
