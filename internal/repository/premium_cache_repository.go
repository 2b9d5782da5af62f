package repository

import (
	"context"
	"fmt"

	"underwriting-service/internal/database/redis"
	"underwriting-service/internal/ledger"
)

type jsonCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
}

// PremiumCacheRepository caches premium quotes. Keys embed the ledger
// version, so any mutation makes earlier entries unreachable.
type PremiumCacheRepository struct {
	cache jsonCache
}

func NewPremiumCacheRepository(client *redis.Client) *PremiumCacheRepository {
	return &PremiumCacheRepository{cache: client}
}

func premiumCacheKey(version uint64, key ledger.ScoreKey) string {
	return redis.Key("premium", fmt.Sprintf("v%d", version), string(key.FarmerID), key.CropType, key.Season)
}

// GetQuote returns (nil, nil) on a cache miss.
func (r *PremiumCacheRepository) GetQuote(ctx context.Context, version uint64, key ledger.ScoreKey) (*ledger.Quote, error) {
	var quote ledger.Quote
	found, err := r.cache.GetJSON(ctx, premiumCacheKey(version, key), &quote)
	if err != nil || !found {
		return nil, err
	}
	return &quote, nil
}

func (r *PremiumCacheRepository) SetQuote(ctx context.Context, quote ledger.Quote) error {
	key := ledger.ScoreKey{FarmerID: quote.FarmerID, CropType: quote.CropType, Season: quote.Season}
	return r.cache.SetJSON(ctx, premiumCacheKey(quote.Version, key), quote)
}
