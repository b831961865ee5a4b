package repository

import (
	"context"

	"github.com/snaptrack/internal/domain"
)

// SnapCacheRepository определяет методы для кеша результатов привязки.
// Кеш — оптимизация (бесплатный тариф ограничен кредитами в день),
// его ошибки никогда не должны ронять пайплайн.
type SnapCacheRepository interface {
	// Get возвращает закешированный результат или nil при промахе
	Get(ctx context.Context, key string) (*domain.SnapResult, error)

	// Set сохраняет результат привязки батча
	Set(ctx context.Context, key string, result *domain.SnapResult) error
}
