package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/snaptrack/internal/domain"
	"github.com/snaptrack/internal/domain/repository"
)

const keyPrefix = "snaptrack:batch:"

type snapCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapCacheRepository создает Redis-кеш результатов привязки
func NewSnapCacheRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) repository.SnapCacheRepository {
	return &snapCacheRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get возвращает закешированный результат; промах — это (nil, nil)
func (c *snapCacheRepository) Get(ctx context.Context, key string) (*domain.SnapResult, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached snap result: %w", err)
	}

	var result domain.SnapResult
	if err := json.Unmarshal(data, &result); err != nil {
		// Stale or corrupted entry: treat as a miss
		c.logger.Warn("Dropping unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, nil
	}

	return &result, nil
}

func (c *snapCacheRepository) Set(ctx context.Context, key string, result *domain.SnapResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal snap result: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache snap result: %w", err)
	}

	return nil
}

// SnapKey строит ключ кеша по содержимому батча: режим, координаты
// и временные метки. Один и тот же батч при повторном прогоне
// не тратит кредиты API.
func SnapKey(mode string, batch domain.Batch) string {
	var sb strings.Builder
	sb.WriteString(mode)
	for _, p := range batch.Points {
		fmt.Fprintf(&sb, "|%.7f,%.7f", p.Lat, p.Lon)
		if p.Timestamp != nil {
			fmt.Fprintf(&sb, ",%d", p.Timestamp.Unix())
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
