package usecase

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/snaptrack/internal/domain"
)

// Reassembler сшивает результаты привязки обратно в один трек
type Reassembler struct {
	logger *zap.Logger
}

func NewReassembler(logger *zap.Logger) *Reassembler {
	return &Reassembler{logger: logger}
}

// Merge конкатенирует результаты в порядке батчей, убирая дублированную
// граничную точку между соседними парами. Батч со статусом failure
// подменяется исходными точками и помечается как деградировавший сегмент;
// частичный успех — валидное терминальное состояние прогона.
func (r *Reassembler) Merge(batches []domain.Batch, results []*domain.SnapResult) (*domain.CorrectedTrack, error) {
	if len(results) != len(batches) {
		return nil, fmt.Errorf("result count %d does not match batch count %d", len(results), len(batches))
	}

	total := 0
	for _, b := range batches {
		total += len(b.Points)
	}

	merged := make([]domain.Point, 0, total)
	var degraded []int

	for i, res := range results {
		segment := res.Points
		if !res.Snapped() || len(segment) != len(batches[i].Points) {
			if res.Snapped() {
				// Defensive: a snapped segment of the wrong length cannot be
				// stitched, keep the originals instead.
				r.logger.Warn("Snapped segment length mismatch, keeping original points",
					zap.Int("batch_index", i),
					zap.Int("expected", len(batches[i].Points)),
					zap.Int("got", len(segment)))
			} else {
				r.logger.Warn("Batch degraded, keeping original points",
					zap.Int("batch_index", i),
					zap.String("error", res.Err))
			}
			segment = batches[i].Points
			degraded = append(degraded, i)
		}

		// The first point of every batch after the first duplicates the
		// last point of the previous batch.
		if i > 0 {
			segment = segment[1:]
		}
		merged = append(merged, segment...)
	}

	return &domain.CorrectedTrack{
		Points: merged,
		Summary: domain.RunSummary{
			BatchCount:       len(batches),
			DegradedSegments: degraded,
		},
	}, nil
}
