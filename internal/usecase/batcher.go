package usecase

import "github.com/snaptrack/internal/domain"

// Batcher разбивает трек на батчи не больше maxPoints точек.
// Соседние батчи делят ровно одну граничную точку, чтобы Reassembler
// мог бесшовно сшить независимо привязанные куски.
type Batcher struct {
	maxPoints int
}

func NewBatcher(maxPoints int) *Batcher {
	if maxPoints < 2 {
		maxPoints = 2
	}
	return &Batcher{maxPoints: maxPoints}
}

// Split детерминированно разбивает трек: один и тот же вход всегда
// дает одно и то же разбиение. Трек, помещающийся в лимит, дает
// ровно один батч.
func (b *Batcher) Split(track *domain.Track) []domain.Batch {
	points := track.Points
	if len(points) <= b.maxPoints {
		return []domain.Batch{{Index: 0, Points: points}}
	}

	// Each batch starts on the last point of the previous one.
	step := b.maxPoints - 1
	batches := make([]domain.Batch, 0, (len(points)+step-1)/step)
	for start := 0; start < len(points)-1; start += step {
		end := start + b.maxPoints
		if end > len(points) {
			end = len(points)
		}
		batches = append(batches, domain.Batch{
			Index:  len(batches),
			Points: points[start:end],
		})
		if end == len(points) {
			break
		}
	}

	return batches
}
