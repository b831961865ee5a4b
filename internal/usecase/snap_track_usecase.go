package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snaptrack/internal/domain"
	"github.com/snaptrack/internal/domain/repository"
	apperrors "github.com/snaptrack/internal/pkg/errors"
	"github.com/snaptrack/internal/pkg/utils"
	"github.com/snaptrack/internal/repository/cache"
	"github.com/snaptrack/internal/usecase/dto"
)

// SnapTrackUseCase — один линейный проход: загрузка, разбиение, привязка,
// сшивка, запись. Никакого состояния между прогонами не остается.
type SnapTrackUseCase struct {
	trackRepo   repository.TrackRepository
	snapRepo    repository.SnapRepository
	cacheRepo   repository.SnapCacheRepository
	batcher     *Batcher
	reassembler *Reassembler
	mode        string
	logger      *zap.Logger
}

func NewSnapTrackUseCase(
	trackRepo repository.TrackRepository,
	snapRepo repository.SnapRepository,
	cacheRepo repository.SnapCacheRepository,
	batcher *Batcher,
	reassembler *Reassembler,
	mode string,
	logger *zap.Logger,
) *SnapTrackUseCase {
	return &SnapTrackUseCase{
		trackRepo:   trackRepo,
		snapRepo:    snapRepo,
		cacheRepo:   cacheRepo,
		batcher:     batcher,
		reassembler: reassembler,
		mode:        mode,
		logger:      logger,
	}
}

// Run выполняет прогон для одного входного файла
func (uc *SnapTrackUseCase) Run(ctx context.Context, req dto.SnapRunRequest) (*dto.SnapRunResponse, error) {
	log := uc.logger.With(zap.String("run_id", uuid.New().String()))

	track, err := uc.trackRepo.Load(req.InputPath)
	if err != nil {
		return nil, err
	}

	lengthKm := trackLengthKm(track.Points)
	log.Info("Track loaded",
		zap.String("input", req.InputPath),
		zap.Int("points", track.Len()),
		zap.Float64("length_km", lengthKm))

	batches := uc.batcher.Split(track)
	log.Info("Track split into batches",
		zap.Int("batches", len(batches)),
		zap.String("mode", uc.mode))

	results := make([]*domain.SnapResult, 0, len(batches))
	requests := 0
	cacheHits := 0

	for _, batch := range batches {
		// Cancellation is honored between batches only: a partial HTTP
		// response is not resumable anyway.
		select {
		case <-ctx.Done():
			log.Warn("Run cancelled", zap.Int("completed_batches", len(results)))
			return nil, ctx.Err()
		default:
		}

		key := cache.SnapKey(uc.mode, batch)
		if cached, err := uc.cacheRepo.Get(ctx, key); err != nil {
			log.Warn("Cache lookup failed", zap.Int("batch_index", batch.Index), zap.Error(err))
		} else if cached != nil {
			log.Debug("Batch served from cache", zap.Int("batch_index", batch.Index))
			results = append(results, cached)
			cacheHits++
			continue
		}

		result, err := uc.snapRepo.SnapBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		requests++

		if result.Snapped() {
			if err := uc.cacheRepo.Set(ctx, key, result); err != nil {
				log.Warn("Cache store failed", zap.Int("batch_index", batch.Index), zap.Error(err))
			}
		}

		results = append(results, result)
	}

	corrected, err := uc.reassembler.Merge(batches, results)
	if err != nil {
		return nil, err
	}
	corrected.Summary.Mode = uc.mode
	corrected.Summary.Requests = requests
	corrected.Summary.CacheHits = cacheHits

	outputPath := uc.trackRepo.OutputPath(req.InputPath, req.OutputDir)
	if err := uc.writeWithRetry(corrected, outputPath, log); err != nil {
		return nil, err
	}

	// Degraded count is always reported, even on full success
	log.Info("Run finished",
		zap.String("output", outputPath),
		zap.Int("points_out", len(corrected.Points)),
		zap.Int("batches", corrected.Summary.BatchCount),
		zap.Int("degraded_segments", corrected.Summary.Degraded()),
		zap.Int("requests", requests),
		zap.Int("cache_hits", cacheHits))

	return &dto.SnapRunResponse{
		OutputPath:       outputPath,
		PointsIn:         track.Len(),
		PointsOut:        len(corrected.Points),
		TrackLengthKm:    lengthKm,
		BatchCount:       corrected.Summary.BatchCount,
		DegradedSegments: corrected.Summary.DegradedSegments,
		Requests:         requests,
		CacheHits:        cacheHits,
	}, nil
}

// writeWithRetry повторяет запись один раз: исправленный трек уже в памяти,
// и повторный прогон ради временного сбоя ФС заново потратил бы кредиты API
func (uc *SnapTrackUseCase) writeWithRetry(track *domain.CorrectedTrack, path string, log *zap.Logger) error {
	err := uc.trackRepo.Write(track, path)
	if err == nil {
		return nil
	}
	if !apperrors.HasCode(err, apperrors.CodeWriteError) {
		return err
	}

	log.Warn("Write failed, retrying once", zap.String("path", path), zap.Error(err))
	if retryErr := uc.trackRepo.Write(track, path); retryErr != nil {
		return fmt.Errorf("write retry failed: %w", retryErr)
	}
	return nil
}

func trackLengthKm(points []domain.Point) float64 {
	length := 0.0
	for i := 1; i < len(points); i++ {
		length += utils.HaversineDistance(
			points[i-1].Lat, points[i-1].Lon,
			points[i].Lat, points[i].Lon,
		)
	}
	return length
}
