package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"underwriting-service/internal/event"
	"underwriting-service/internal/ledger"
	"underwriting-service/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

const (
	admin    ledger.Principal = "STADMIN1111111111111111111111111111111"
	farmer   ledger.Principal = "STFARMER000000000000000000000000000000"
	newAdmin ledger.Principal = "STNEWADMIN222222222222222222222222222"
	stranger ledger.Principal = "STNOTADMIN"
)

var scoreKey = ledger.ScoreKey{FarmerID: farmer, CropType: "maize", Season: "2025-Q1"}

type fakeStore struct {
	state     *ledger.State
	seeded    ledger.Principal
	changes   []ledger.Change
	appendErr error
	loadErr   error
}

func (f *fakeStore) Append(_ context.Context, change ledger.Change) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeStore) EnsureAdmin(_ context.Context, a ledger.Principal) error {
	f.seeded = a
	return nil
}

func (f *fakeStore) LoadState(context.Context) (*ledger.State, error) {
	return f.state, f.loadErr
}

type fakeCache struct {
	quotes map[string]ledger.Quote
	gets   int
	hits   int
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{quotes: map[string]ledger.Quote{}}
}

func cacheKey(version uint64, key ledger.ScoreKey) string {
	data, _ := json.Marshal([]any{version, key.FarmerID, key.CropType, key.Season})
	return string(data)
}

func (f *fakeCache) GetQuote(_ context.Context, version uint64, key ledger.ScoreKey) (*ledger.Quote, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	quote, ok := f.quotes[cacheKey(version, key)]
	if !ok {
		return nil, nil
	}
	f.hits++
	return &quote, nil
}

func (f *fakeCache) SetQuote(_ context.Context, quote ledger.Quote) error {
	key := ledger.ScoreKey{FarmerID: quote.FarmerID, CropType: quote.CropType, Season: quote.Season}
	f.quotes[cacheKey(quote.Version, key)] = quote
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []event.LedgerEvent
}

func (f *fakePublisher) Publish(_ context.Context, evt event.LedgerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

// inlineDispatcher runs jobs synchronously.
type inlineDispatcher struct {
	submitted int
	err       error
}

func (d *inlineDispatcher) SubmitJob(job worker.Job) error {
	if d.err != nil {
		return d.err
	}
	d.submitted++
	return job(context.Background())
}

type fakeArchive struct {
	objects map[string][]byte
}

func (f *fakeArchive) PutSnapshot(_ context.Context, objectName string, data []byte) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[objectName] = data
	return nil
}

func (f *fakeArchive) ListSnapshots(context.Context) ([]string, error) {
	names := make([]string, 0, len(f.objects))
	for name := range f.objects {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (f *fakeArchive) GetPresignedURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://minio.local/ledger-snapshots/" + objectName, nil
}

func newLoadedService(t *testing.T, store LedgerStore, cache PremiumCache, publisher EventPublisher, dispatcher JobSubmitter, archive SnapshotArchive) *UnderwritingService {
	t.Helper()
	svc := NewUnderwritingService(store, cache, publisher, dispatcher, archive)
	require.NoError(t, svc.Load(context.Background(), string(admin)))
	return svc
}

// ============================================================================
// LOADING
// ============================================================================

func TestLoad_SeedsAdminOnFirstStart(t *testing.T) {
	store := &fakeStore{}
	svc := NewUnderwritingService(store, nil, nil, nil, nil)

	require.NoError(t, svc.Load(context.Background(), string(admin)))

	assert.Equal(t, admin, store.seeded)
	assert.True(t, svc.IsAdmin(admin))
}

func TestLoad_PersistedStateWins(t *testing.T) {
	store := &fakeStore{state: &ledger.State{
		Admin:      newAdmin,
		Version:    4,
		Tiers:      []ledger.TierRate{{Tier: 2, RateBps: 500}},
		Discounts:  []ledger.Discount{{FarmerID: farmer, DiscountBps: 200}},
		RiskScores: []ledger.RiskScore{{FarmerID: farmer, CropType: "maize", Season: "2025-Q1", Score: 35}},
	}}
	svc := NewUnderwritingService(store, nil, nil, nil, nil)

	require.NoError(t, svc.Load(context.Background(), string(admin)))

	assert.Empty(t, store.seeded)
	assert.Equal(t, string(newAdmin), svc.GetAdmin().Admin)
	assert.Equal(t, uint64(4), svc.GetAdmin().Version)

	quote, err := svc.CalculateFinalPremium(context.Background(), scoreKey)
	require.NoError(t, err)
	assert.Equal(t, int64(300), quote.FinalBps)
}

func TestLoad_RequiresAdmin(t *testing.T) {
	assert.ErrorIs(t, NewUnderwritingService(&fakeStore{}, nil, nil, nil, nil).Load(context.Background(), ""), ErrAdminNotConfigured)
	assert.ErrorIs(t, NewUnderwritingService(nil, nil, nil, nil, nil).Load(context.Background(), ""), ErrAdminNotConfigured)
}

func TestLoad_StoreError(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("db down")}

	err := NewUnderwritingService(store, nil, nil, nil, nil).Load(context.Background(), string(admin))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

// ============================================================================
// PERSISTENCE AND EVENTS
// ============================================================================

func TestMutations_PersistAndPublish(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	publisher := &fakePublisher{}
	dispatcher := &inlineDispatcher{}
	svc := newLoadedService(t, store, nil, publisher, dispatcher, nil)

	require.NoError(t, svc.SetBasePremiumTier(ctx, admin, 2, 500))
	require.NoError(t, svc.SetPremiumDiscount(ctx, admin, farmer, 200))
	require.NoError(t, svc.SubmitRiskScore(ctx, admin, scoreKey, 35))
	require.NoError(t, svc.MarkPolicySubmitted(ctx, admin, ledger.SubmissionKey{FarmerID: farmer, Season: "2025-Q1"}))
	require.NoError(t, svc.TransferAdmin(ctx, admin, newAdmin))

	require.Len(t, store.changes, 5)
	require.Len(t, publisher.events, 5)
	assert.Equal(t, 5, dispatcher.submitted)
	assert.Equal(t, ledger.ChangeAdminTransferred, publisher.events[4].EventType)
	assert.Equal(t, uint64(5), publisher.events[4].Version)
}

func TestMutations_RejectedNeitherPersistedNorPublished(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	publisher := &fakePublisher{}
	svc := newLoadedService(t, store, nil, publisher, nil, nil)

	assert.ErrorIs(t, svc.SubmitRiskScore(ctx, stranger, scoreKey, 20), ledger.ErrNotAdmin)
	assert.ErrorIs(t, svc.SubmitRiskScore(ctx, admin, scoreKey, 101), ledger.ErrScoreOutOfRange)

	assert.Empty(t, store.changes)
	assert.Empty(t, publisher.events)
}

func TestMutations_StoreFailureLeavesLedgerUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	publisher := &fakePublisher{}
	svc := newLoadedService(t, store, nil, publisher, nil, nil)
	store.appendErr = errors.New("disk full")

	err := svc.SubmitRiskScore(ctx, admin, scoreKey, 35)

	require.Error(t, err)
	_, err = svc.GetRiskScore(scoreKey)
	assert.ErrorIs(t, err, ledger.ErrScoreNotFound)
	assert.Empty(t, publisher.events)
}

func TestMutations_DroppedEventDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	dispatcher := &inlineDispatcher{err: worker.ErrQueueFull}
	svc := newLoadedService(t, nil, nil, &fakePublisher{}, dispatcher, nil)

	assert.NoError(t, svc.SetBasePremiumTier(ctx, admin, 1, 100))
	rate, ok := svc.Ledger().TierRate(1)
	assert.True(t, ok)
	assert.Equal(t, int64(100), rate)
}

// ============================================================================
// PREMIUM CACHE
// ============================================================================

func TestCalculateFinalPremium_CachesPerVersion(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	svc := newLoadedService(t, nil, cache, nil, nil, nil)

	require.NoError(t, svc.SetBasePremiumTier(ctx, admin, 2, 500))
	require.NoError(t, svc.SetPremiumDiscount(ctx, admin, farmer, 200))
	require.NoError(t, svc.SubmitRiskScore(ctx, admin, scoreKey, 35))

	first, err := svc.CalculateFinalPremium(ctx, scoreKey)
	require.NoError(t, err)
	assert.Equal(t, int64(300), first.FinalBps)
	assert.Equal(t, 0, cache.hits)

	second, err := svc.CalculateFinalPremium(ctx, scoreKey)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.hits)

	// a discount change bumps the version, so the cached quote is bypassed
	require.NoError(t, svc.SetPremiumDiscount(ctx, admin, farmer, 600))
	third, err := svc.CalculateFinalPremium(ctx, scoreKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), third.FinalBps)
	assert.Equal(t, 1, cache.hits)
}

func TestCalculateFinalPremium_CacheErrorFallsBack(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	cache.getErr = errors.New("redis timeout")
	svc := newLoadedService(t, nil, cache, nil, nil, nil)

	require.NoError(t, svc.SetBasePremiumTier(ctx, admin, 1, 100))
	require.NoError(t, svc.SubmitRiskScore(ctx, admin, scoreKey, 10))

	quote, err := svc.CalculateFinalPremium(ctx, scoreKey)

	require.NoError(t, err)
	assert.Equal(t, int64(100), quote.FinalBps)
}

func TestCalculateFinalPremium_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	svc := newLoadedService(t, nil, cache, nil, nil, nil)

	_, err := svc.CalculateFinalPremium(ctx, scoreKey)
	assert.ErrorIs(t, err, ledger.ErrScoreNotFound)

	require.NoError(t, svc.SubmitRiskScore(ctx, admin, scoreKey, 90))
	_, err = svc.CalculateFinalPremium(ctx, scoreKey)
	assert.ErrorIs(t, err, ledger.ErrTierRateNotConfigured)

	assert.Empty(t, cache.quotes)
}

// ============================================================================
// QUERIES AND SNAPSHOTS
// ============================================================================

func TestGetBasePremium_IncludesTier(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, nil, nil, nil, nil, nil)
	require.NoError(t, svc.SetBasePremiumTier(ctx, admin, 3, 450))

	resp, err := svc.GetBasePremium(55)

	require.NoError(t, err)
	assert.Equal(t, 3, resp.Tier)
	assert.Equal(t, int64(450), resp.RateBps)

	_, err = svc.GetBasePremium(101)
	assert.ErrorIs(t, err, ledger.ErrScoreOutOfRange)
}

func TestHasSubmittedPolicy(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, nil, nil, nil, nil, nil)
	key := ledger.SubmissionKey{FarmerID: farmer, Season: "2025-Q1"}

	assert.False(t, svc.HasSubmittedPolicy(key).Submitted)
	require.NoError(t, svc.MarkPolicySubmitted(ctx, admin, key))
	assert.True(t, svc.HasSubmittedPolicy(key).Submitted)
}

func TestExportSnapshot(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{}
	svc := newLoadedService(t, nil, nil, nil, nil, archive)
	require.NoError(t, svc.SetBasePremiumTier(ctx, admin, 2, 500))

	_, err := svc.ExportSnapshot(ctx, stranger)
	assert.ErrorIs(t, err, ledger.ErrNotAdmin)
	assert.Empty(t, archive.objects)

	resp, err := svc.ExportSnapshot(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.Version)
	require.Contains(t, archive.objects, resp.ObjectName)

	var state ledger.State
	require.NoError(t, json.Unmarshal(archive.objects[resp.ObjectName], &state))
	assert.Equal(t, svc.Ledger().Snapshot(), state)
}

func TestExportSnapshot_NoArchive(t *testing.T) {
	svc := newLoadedService(t, nil, nil, nil, nil, nil)

	_, err := svc.ExportSnapshot(context.Background(), admin)

	assert.ErrorIs(t, err, ErrArchiveUnavailable)
}

func TestListSnapshots(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{}
	svc := newLoadedService(t, nil, nil, nil, nil, archive)

	exported, err := svc.ExportSnapshot(ctx, admin)
	require.NoError(t, err)

	_, err = svc.ListSnapshots(ctx, stranger)
	assert.ErrorIs(t, err, ledger.ErrNotAdmin)

	links, err := svc.ListSnapshots(ctx, admin)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, exported.ObjectName, links[0].ObjectName)
	assert.Equal(t, "https://minio.local/ledger-snapshots/"+exported.ObjectName, links[0].URL)
	assert.Equal(t, 900, links[0].ExpiresIn)
}
