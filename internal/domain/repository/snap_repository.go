package repository

import (
	"context"

	"github.com/snaptrack/internal/domain"
)

// SnapRepository определяет методы для работы с внешним map-matching API
type SnapRepository interface {
	// SnapBatch отправляет батч на привязку и возвращает результат.
	// Исчерпание повторов — это SnapResult со статусом failure, а не ошибка;
	// ошибка возвращается только для фатальных случаев (авторизация, отмена).
	SnapBatch(ctx context.Context, batch domain.Batch) (*domain.SnapResult, error)
}
