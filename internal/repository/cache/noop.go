package cache

import (
	"context"

	"github.com/snaptrack/internal/domain"
	"github.com/snaptrack/internal/domain/repository"
)

type noopSnapCache struct{}

// NewNoopSnapCache возвращает кеш-заглушку для прогонов без Redis
func NewNoopSnapCache() repository.SnapCacheRepository {
	return noopSnapCache{}
}

func (noopSnapCache) Get(ctx context.Context, key string) (*domain.SnapResult, error) {
	return nil, nil
}

func (noopSnapCache) Set(ctx context.Context, key string, result *domain.SnapResult) error {
	return nil
}
