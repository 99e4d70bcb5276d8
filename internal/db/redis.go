package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/models"
)

// ReloadChannel carries snapshot reload notifications between instances.
const ReloadChannel = "rtbengine:reload"

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func spendKey(campaignID string) string {
	return "spend:campaign:" + campaignID
}

// incrementSpendScript checks headroom and increments in one atomic step.
// Returns {1, total} on success, {0, spent} when the budget would be crossed
// and {-1, "0"} for a campaign without a synced budget.
var incrementSpendScript = redis.NewScript(`
local budget = redis.call('HGET', KEYS[1], 'budget')
if not budget then
  return {-1, '0'}
end
local spent = tonumber(redis.call('HGET', KEYS[1], 'spent') or '0')
local amount = tonumber(ARGV[1])
if spent + amount > tonumber(budget) then
  return {0, tostring(spent)}
end
local total = redis.call('HINCRBYFLOAT', KEYS[1], 'spent', ARGV[1])
return {1, total}
`)

// IncrementSpend records amount against the campaign's budget hash. It returns
// ErrBudgetExceeded when the budget would be crossed and models.ErrNotFound
// when the campaign's budget was never synced.
func (r *RedisStore) IncrementSpend(ctx context.Context, campaignID string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	res, err := incrementSpendScript.Run(ctx, r.Client, []string{spendKey(campaignID)},
		strconv.FormatFloat(amount, 'f', -1, 64)).Slice()
	if err != nil {
		return 0, fmt.Errorf("increment spend for campaign %s: %w", campaignID, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("increment spend for campaign %s: unexpected reply %v", campaignID, res)
	}

	status, _ := res[0].(int64)
	raw, _ := res[1].(string)
	switch status {
	case 1:
		total, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("parse spend total %q: %w", raw, err)
		}
		return total, nil
	case 0:
		return 0, fmt.Errorf("campaign %s: %w", campaignID, ErrBudgetExceeded)
	default:
		return 0, fmt.Errorf("campaign %s: %w", campaignID, models.ErrNotFound)
	}
}

// SyncBudgets mirrors each campaign's budget into Redis. Spend already tracked
// in Redis is kept; the durable value only seeds campaigns Redis has not seen.
// It returns the spend Redis holds for every campaign after the sync.
func (r *RedisStore) SyncBudgets(ctx context.Context, campaigns []models.Campaign) (map[string]float64, error) {
	pipe := r.Client.TxPipeline()
	reads := make([]*redis.StringCmd, len(campaigns))
	for i, c := range campaigns {
		key := spendKey(c.ID)
		pipe.HSet(ctx, key, "budget", strconv.FormatFloat(c.Budget, 'f', -1, 64))
		pipe.HSetNX(ctx, key, "spent", strconv.FormatFloat(c.TotalSpent, 'f', -1, 64))
		reads[i] = pipe.HGet(ctx, key, "spent")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("sync budgets: %w", err)
	}

	spent := make(map[string]float64, len(campaigns))
	for i, c := range campaigns {
		v, err := reads[i].Float64()
		if err != nil {
			return nil, fmt.Errorf("read spend for %s: %w", c.ID, err)
		}
		spent[c.ID] = v
	}
	return spent, nil
}

// GetSpend returns the spend tracked in Redis for a campaign.
func (r *RedisStore) GetSpend(ctx context.Context, campaignID string) (float64, error) {
	v, err := r.Client.HGet(ctx, spendKey(campaignID), "spent").Float64()
	if err == redis.Nil {
		return 0, models.ErrNotFound
	}
	return v, err
}

func winKey(auctionID string) string {
	return "win:auction:" + auctionID
}

// ClaimWin marks an auction's win notice as processed. It returns false when
// the auction was already claimed within ttl.
func (r *RedisStore) ClaimWin(ctx context.Context, auctionID string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, winKey(auctionID), 1, ttl).Result()
}

// ReleaseWin undoes ClaimWin so a failed confirmation can be retried.
func (r *RedisStore) ReleaseWin(ctx context.Context, auctionID string) error {
	return r.Client.Del(ctx, winKey(auctionID)).Err()
}

// PublishReload asks every subscribed instance to reload its snapshot.
func (r *RedisStore) PublishReload(ctx context.Context, origin string) error {
	return r.Client.Publish(ctx, ReloadChannel, origin).Err()
}

// SubscribeReload calls fn for every reload notification until ctx is done.
// Notifications published by self are skipped.
func (r *RedisStore) SubscribeReload(ctx context.Context, self string, fn func(ctx context.Context)) {
	sub := r.Client.Subscribe(ctx, ReloadChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Payload == self {
				continue
			}
			zap.L().Info("reload notification received", zap.String("origin", msg.Payload))
			fn(ctx)
		}
	}
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
