package usecase_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snaptrack/internal/domain"
	"github.com/snaptrack/internal/domain/repository"
	apperrors "github.com/snaptrack/internal/pkg/errors"
	"github.com/snaptrack/internal/repository/cache"
	"github.com/snaptrack/internal/repository/file"
	"github.com/snaptrack/internal/usecase"
	"github.com/snaptrack/internal/usecase/dto"
)

type MockSnapRepository struct {
	mock.Mock
}

// flakyTrackRepository fails the first writeFailures calls to Write with
// failWith, then delegates to the real repository
type flakyTrackRepository struct {
	repository.TrackRepository
	writeFailures int
	failWith      error
	writeCalls    int
}

func (r *flakyTrackRepository) Write(track *domain.CorrectedTrack, path string) error {
	r.writeCalls++
	if r.writeCalls <= r.writeFailures {
		return r.failWith
	}
	return r.TrackRepository.Write(track, path)
}

func (m *MockSnapRepository) SnapBatch(ctx context.Context, batch domain.Batch) (*domain.SnapResult, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SnapResult), args.Error(1)
}

func writeTrackFile(t *testing.T, dir string, coords [][2]float64) string {
	t.Helper()
	pairs := make([]string, 0, len(coords))
	for _, c := range coords {
		pairs = append(pairs, fmt.Sprintf("[%f, %f]", c[0], c[1]))
	}
	content := fmt.Sprintf(`{
		"type": "Feature",
		"properties": {},
		"geometry": {"type": "LineString", "coordinates": [%s]}
	}`, strings.Join(pairs, ", "))
	path := filepath.Join(dir, "track.geojson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fiveCoords is the worked example: five points along the equator, lon 0..4
func fiveCoords() [][2]float64 {
	return [][2]float64{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}}
}

type pipelineFixture struct {
	uc       *usecase.SnapTrackUseCase
	mockSnap *MockSnapRepository
	batches  []domain.Batch
}

// newPipeline wires a real loader/writer and batcher around a mocked
// snapping service, mirroring how main assembles the run
func newPipeline(t *testing.T, inputPath string, maxBatch int) *pipelineFixture {
	t.Helper()
	return newPipelineWith(t, inputPath, maxBatch, file.NewTrackRepository("_snapped", zap.NewNop()))
}

func newPipelineWith(t *testing.T, inputPath string, maxBatch int, trackRepo repository.TrackRepository) *pipelineFixture {
	t.Helper()
	logger := zap.NewNop()
	mockSnap := &MockSnapRepository{}
	batcher := usecase.NewBatcher(maxBatch)

	track, err := trackRepo.Load(inputPath)
	require.NoError(t, err)

	uc := usecase.NewSnapTrackUseCase(
		trackRepo,
		mockSnap,
		cache.NewNoopSnapCache(),
		batcher,
		usecase.NewReassembler(logger),
		"drive",
		logger,
	)

	return &pipelineFixture{
		uc:       uc,
		mockSnap: mockSnap,
		batches:  batcher.Split(track),
	}
}

func (f *pipelineFixture) expectIdentitySnap(indices ...int) {
	for _, idx := range indices {
		b := f.batches[idx]
		f.mockSnap.On("SnapBatch", mock.Anything, mock.MatchedBy(func(x domain.Batch) bool {
			return x.Index == b.Index
		})).Return(&domain.SnapResult{
			BatchIndex: b.Index,
			Status:     domain.SnapStatusSuccess,
			Points:     b.Points,
		}, nil)
	}
}

func (f *pipelineFixture) expectFailedSnap(idx int) {
	f.mockSnap.On("SnapBatch", mock.Anything, mock.MatchedBy(func(x domain.Batch) bool {
		return x.Index == idx
	})).Return(&domain.SnapResult{
		BatchIndex: idx,
		Status:     domain.SnapStatusFailure,
		Err:        "retries exhausted",
	}, nil)
}

func TestSnapTrackUseCase_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("snaps a track across two batches", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())
		f := newPipeline(t, input, 3)
		require.Len(t, f.batches, 2)
		f.expectIdentitySnap(0, 1)

		resp, err := f.uc.Run(ctx, dto.SnapRunRequest{InputPath: input})

		require.NoError(t, err)
		assert.Equal(t, 5, resp.PointsIn)
		assert.Equal(t, 5, resp.PointsOut)
		assert.Equal(t, 2, resp.BatchCount)
		assert.Empty(t, resp.DegradedSegments)
		assert.Equal(t, 2, resp.Requests)
		assert.Equal(t, filepath.Join(dir, "track_snapped.geojson"), resp.OutputPath)

		_, err = os.Stat(resp.OutputPath)
		assert.NoError(t, err)
		f.mockSnap.AssertExpectations(t)
	})

	t.Run("failed batch degrades its segment but the run succeeds", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())
		f := newPipeline(t, input, 3)
		f.expectIdentitySnap(0)
		f.expectFailedSnap(1)

		resp, err := f.uc.Run(ctx, dto.SnapRunRequest{InputPath: input})

		require.NoError(t, err)
		assert.Equal(t, 5, resp.PointsOut)
		assert.Equal(t, []int{1}, resp.DegradedSegments)
	})

	t.Run("invalid coordinate aborts before any request", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, [][2]float64{{0, 0}, {1, 95}, {2, 0}})

		logger := zap.NewNop()
		mockSnap := &MockSnapRepository{}
		uc := usecase.NewSnapTrackUseCase(
			file.NewTrackRepository("_snapped", logger),
			mockSnap,
			cache.NewNoopSnapCache(),
			usecase.NewBatcher(3),
			usecase.NewReassembler(logger),
			"drive",
			logger,
		)

		_, err := uc.Run(ctx, dto.SnapRunRequest{InputPath: input})

		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidCoordinate))
		mockSnap.AssertNotCalled(t, "SnapBatch", mock.Anything, mock.Anything)
	})

	t.Run("auth error aborts the whole run", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())
		f := newPipeline(t, input, 3)
		f.mockSnap.On("SnapBatch", mock.Anything, mock.Anything).
			Return(nil, apperrors.NewAuthError(401, "bad key"))

		_, err := f.uc.Run(ctx, dto.SnapRunRequest{InputPath: input})

		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthError))
	})

	t.Run("cancelled context stops between batches without output", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())
		f := newPipeline(t, input, 3)

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.uc.Run(cancelled, dto.SnapRunRequest{InputPath: input})

		require.ErrorIs(t, err, context.Canceled)
		_, statErr := os.Stat(filepath.Join(dir, "track_snapped.geojson"))
		assert.True(t, os.IsNotExist(statErr))
		f.mockSnap.AssertNotCalled(t, "SnapBatch", mock.Anything, mock.Anything)
	})

	t.Run("two runs with a deterministic service are byte-identical", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())

		outA := filepath.Join(dir, "a")
		outB := filepath.Join(dir, "b")
		require.NoError(t, os.Mkdir(outA, 0o755))
		require.NoError(t, os.Mkdir(outB, 0o755))

		for _, out := range []string{outA, outB} {
			f := newPipeline(t, input, 3)
			f.expectIdentitySnap(0, 1)
			_, err := f.uc.Run(ctx, dto.SnapRunRequest{InputPath: input, OutputDir: out})
			require.NoError(t, err)
		}

		a, err := os.ReadFile(filepath.Join(outA, "track_snapped.geojson"))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(outB, "track_snapped.geojson"))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("transient write failure is retried once from memory", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())
		flaky := &flakyTrackRepository{
			TrackRepository: file.NewTrackRepository("_snapped", zap.NewNop()),
			writeFailures:   1,
			failWith:        apperrors.NewWriteError("out", os.ErrPermission),
		}
		f := newPipelineWith(t, input, 3, flaky)
		f.expectIdentitySnap(0, 1)

		resp, err := f.uc.Run(ctx, dto.SnapRunRequest{InputPath: input})

		require.NoError(t, err)
		assert.Equal(t, 2, flaky.writeCalls)
		_, err = os.Stat(resp.OutputPath)
		assert.NoError(t, err)
		// the retry reuses the in-memory track, no extra API requests
		f.mockSnap.AssertNumberOfCalls(t, "SnapBatch", 2)
	})

	t.Run("write failing twice aborts with a write error", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())
		flaky := &flakyTrackRepository{
			TrackRepository: file.NewTrackRepository("_snapped", zap.NewNop()),
			writeFailures:   2,
			failWith:        apperrors.NewWriteError("out", os.ErrPermission),
		}
		f := newPipelineWith(t, input, 3, flaky)
		f.expectIdentitySnap(0, 1)

		_, err := f.uc.Run(ctx, dto.SnapRunRequest{InputPath: input})

		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeWriteError))
		// exactly one retry
		assert.Equal(t, 2, flaky.writeCalls)
	})

	t.Run("non write-error from the repository is not retried", func(t *testing.T) {
		dir := t.TempDir()
		input := writeTrackFile(t, dir, fiveCoords())
		flaky := &flakyTrackRepository{
			TrackRepository: file.NewTrackRepository("_snapped", zap.NewNop()),
			writeFailures:   1,
			failWith:        fmt.Errorf("serialization failed"),
		}
		f := newPipelineWith(t, input, 3, flaky)
		f.expectIdentitySnap(0, 1)

		_, err := f.uc.Run(ctx, dto.SnapRunRequest{InputPath: input})

		require.Error(t, err)
		assert.False(t, apperrors.HasCode(err, apperrors.CodeWriteError))
		assert.Equal(t, 1, flaky.writeCalls)
	})
}
