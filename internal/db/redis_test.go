package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/rtbengine/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: s.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(store.Close)
	return s, store
}

func syncBudgets(t *testing.T, store *RedisStore, campaigns ...models.Campaign) map[string]float64 {
	t.Helper()
	spent, err := store.SyncBudgets(context.Background(), campaigns)
	require.NoError(t, err)
	return spent
}

func TestRedisIncrementSpend(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	syncBudgets(t, store, models.Campaign{ID: "c1", Budget: 1, TotalSpent: 0.25})

	total, err := store.IncrementSpend(ctx, "c1", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, total, 1e-9)

	// exactly reaching the budget is allowed
	total, err = store.IncrementSpend(ctx, "c1", 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, total, 1e-9)

	_, err = store.IncrementSpend(ctx, "c1", 0.01)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	spent, err := store.GetSpend(ctx, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, spent, 1e-9, "refused increment must not change spend")
}

func TestRedisIncrementSpend_UnknownCampaign(t *testing.T) {
	_, store := setupTestRedis(t)
	_, err := store.IncrementSpend(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = store.GetSpend(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisIncrementSpend_NegativeAmount(t *testing.T) {
	_, store := setupTestRedis(t)
	_, err := store.IncrementSpend(context.Background(), "c1", -0.5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRedisIncrementSpend_ConcurrentWinsNeverOverspend(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	syncBudgets(t, store, models.Campaign{ID: "c1", Budget: 10})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementSpend(ctx, "c1", 0.5); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, accepted)
	spent, err := store.GetSpend(ctx, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, spent, 1e-9)
}

func TestSyncBudgets_KeepsTrackedSpend(t *testing.T) {
	s, store := setupTestRedis(t)
	ctx := context.Background()

	seeded := syncBudgets(t, store, models.Campaign{ID: "c1", Budget: 5, TotalSpent: 1})
	assert.Equal(t, map[string]float64{"c1": 1}, seeded)
	_, err := store.IncrementSpend(ctx, "c1", 2)
	require.NoError(t, err)

	// a reload with a raised budget and stale durable spend
	reported := syncBudgets(t, store,
		models.Campaign{ID: "c1", Budget: 8, TotalSpent: 1},
		models.Campaign{ID: "c2", Budget: 4, TotalSpent: 0.5})
	assert.Equal(t, "8", s.HGet(spendKey("c1"), "budget"))
	assert.InDelta(t, 3.0, reported["c1"], 1e-9, "redis spend wins over the durable value")
	assert.InDelta(t, 0.5, reported["c2"], 1e-9)
	spent, err := store.GetSpend(ctx, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, spent, 1e-9)
}

func TestReloadNotifications(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan struct{}, 4)
	go store.SubscribeReload(ctx, "instance-a", func(context.Context) { got <- struct{}{} })

	// wait for the subscription to be registered before publishing
	require.Eventually(t, func() bool {
		n, err := store.Client.PubSubNumSub(ctx, ReloadChannel).Result()
		return err == nil && n[ReloadChannel] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, store.PublishReload(ctx, "instance-a"))
	require.NoError(t, store.PublishReload(ctx, "instance-b"))

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("expected reload notification from another instance")
	}
	select {
	case <-got:
		t.Fatal("own notification should be ignored")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClaimWin(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	ok, err := store.ClaimWin(ctx, "auction-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ClaimWin(ctx, "auction-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must be refused")

	require.NoError(t, store.ReleaseWin(ctx, "auction-1"))
	ok, err = store.ClaimWin(ctx, "auction-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released claim can be taken again")

	mr.FastForward(2 * time.Minute)
	ok, err = store.ClaimWin(ctx, "auction-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "claim expires with its ttl")
}
