package ledger

const MaxScore = 100

// tierBands holds the inclusive upper bound of each tier, lowest first.
var tierBands = []struct {
	upper int
	tier  int
}{
	{20, 1},
	{40, 2},
	{60, 3},
	{80, 4},
	{MaxScore, 5},
}

// TierForScore maps a score onto tiers 1-5. Negative scores fall in tier 1.
func TierForScore(score int) (int, error) {
	if score > MaxScore {
		return 0, ErrScoreOutOfRange
	}
	for _, band := range tierBands {
		if score <= band.upper {
			return band.tier, nil
		}
	}
	return 0, ErrScoreOutOfRange
}

// Quote is the full breakdown behind a final premium. All amounts are in
// basis points.
type Quote struct {
	FarmerID    Principal `json:"farmer_id"`
	CropType    string    `json:"crop_type"`
	Season      string    `json:"season"`
	Score       int       `json:"score"`
	Tier        int       `json:"tier"`
	BaseBps     int64     `json:"base_bps"`
	DiscountBps int64     `json:"discount_bps"`
	FinalBps    int64     `json:"final_bps"`
	Version     uint64    `json:"version"`
}

// GetBasePremium returns the configured rate for the tier the score falls in.
func (l *Ledger) GetBasePremium(score int) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, rate, err := l.basePremium(score)
	return rate, err
}

func (l *Ledger) basePremium(score int) (int, int64, error) {
	tier, err := TierForScore(score)
	if err != nil {
		return 0, 0, err
	}
	rate, ok := l.tiers[tier]
	if !ok {
		return tier, 0, ErrTierRateNotConfigured
	}
	return tier, rate, nil
}

// CalculateFinalPremium derives the premium for an assessed farmer, crop and
// season. Errors from the base premium lookup are returned unchanged.
func (l *Ledger) CalculateFinalPremium(key ScoreKey) (int64, error) {
	quote, err := l.Quote(key)
	if err != nil {
		return 0, err
	}
	return quote.FinalBps, nil
}

// Quote is CalculateFinalPremium with its intermediate values.
func (l *Ledger) Quote(key ScoreKey) (Quote, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	score, ok := l.scores[key]
	if !ok {
		return Quote{}, ErrScoreNotFound
	}

	tier, base, err := l.basePremium(score)
	if err != nil {
		return Quote{}, err
	}

	discount := l.discounts[key.FarmerID]
	return Quote{
		FarmerID:    key.FarmerID,
		CropType:    key.CropType,
		Season:      key.Season,
		Score:       score,
		Tier:        tier,
		BaseBps:     base,
		DiscountBps: discount,
		FinalBps:    applyDiscount(base, discount),
		Version:     l.version,
	}, nil
}

// applyDiscount floors at zero, including when discount equals base.
func applyDiscount(base, discount int64) int64 {
	if base > discount {
		return base - discount
	}
	return 0
}
