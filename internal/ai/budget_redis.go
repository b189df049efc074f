package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBudget tracks per-user token usage in Redis so that budgets hold
// across replicas. Usage lives in a daily-rolling key; the limit is the
// same for every user.
type RedisBudget struct {
	client *redis.Client
	limit  int64
	ttl    time.Duration
}

// NewRedisBudget creates a budget tracker with a per-user daily limit.
// A limit of zero means unlimited.
func NewRedisBudget(client *redis.Client, limit int64) *RedisBudget {
	return &RedisBudget{
		client: client,
		limit:  limit,
		ttl:    48 * time.Hour,
	}
}

func (b *RedisBudget) key(userID string) string {
	return fmt.Sprintf("budget:%s:%s", time.Now().UTC().Format("2006-01-02"), userID)
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}

	used, err := b.client.Get(ctx, b.key(userID)).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading budget: %w", err)
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	key := b.key(userID)
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording budget: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.client.Get(ctx, b.key(userID)).Int64()
	if err == redis.Nil {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading budget: %w", err)
	}
	return used, b.limit, nil
}
