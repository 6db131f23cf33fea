package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alkatripathi-004/chat-fanout/internal/config"
)

// RedisLedger externalises the dedup ledger so replicated dedup
// consumers share one view of admitted ids. SETNX with a TTL gives
// atomic insert-if-absent plus the retention window in one call.
type RedisLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(cfg config.RedisConfig) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLedger{
		client: client,
		prefix: cfg.LedgerPrefix,
		ttl:    cfg.LedgerTTL,
	}, nil
}

func (l *RedisLedger) keyFor(messageID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, messageID)
}

func (l *RedisLedger) Admit(ctx context.Context, messageID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.keyFor(messageID), 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to admit message id: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) Forget(ctx context.Context, messageID string) error {
	if err := l.client.Del(ctx, l.keyFor(messageID)).Err(); err != nil {
		return fmt.Errorf("failed to forget message id: %w", err)
	}
	return nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}
