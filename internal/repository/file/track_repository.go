package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/snaptrack/internal/domain"
	"github.com/snaptrack/internal/domain/repository"
	apperrors "github.com/snaptrack/internal/pkg/errors"
	"github.com/snaptrack/internal/pkg/utils"
)

type trackRepository struct {
	suffix string
	logger *zap.Logger
}

// NewTrackRepository создает репозиторий треков поверх GeoJSON-файлов
func NewTrackRepository(suffix string, logger *zap.Logger) repository.TrackRepository {
	return &trackRepository{
		suffix: suffix,
		logger: logger,
	}
}

// Load читает GeoJSON-файл и возвращает валидированный трек.
// Принимаются три формы корня:
//   - Feature с геометрией LineString;
//   - FeatureCollection ровно с одним LineString;
//   - FeatureCollection из точечных Feature (по одной точке трека на фичу).
func (r *trackRepository) Load(path string) (*domain.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var root struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, apperrors.NewFormatError(fmt.Sprintf("Input is not valid GeoJSON: %v", err))
	}

	var points []domain.Point
	switch root.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, apperrors.NewFormatError(fmt.Sprintf("Invalid GeoJSON feature: %v", err))
		}
		points, err = lineStringPoints(f)
		if err != nil {
			return nil, err
		}
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, apperrors.NewFormatError(fmt.Sprintf("Invalid GeoJSON collection: %v", err))
		}
		points, err = collectionPoints(fc)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.ErrNotATrack
	}

	if len(points) < 2 {
		return nil, apperrors.ErrEmptyTrack
	}

	for i, p := range points {
		if !utils.ValidateCoordinates(p.Lat, p.Lon) {
			return nil, apperrors.NewInvalidCoordinate(i, p.Lat, p.Lon)
		}
	}

	fillTimestamps(points)

	r.logger.Debug("Track loaded",
		zap.String("path", path),
		zap.Int("points", len(points)))

	return &domain.Track{
		SourcePath: path,
		Points:     points,
	}, nil
}

func lineStringPoints(f *geojson.Feature) ([]domain.Point, error) {
	ls, ok := f.Geometry.(orb.LineString)
	if !ok {
		return nil, apperrors.ErrNotATrack
	}
	points := make([]domain.Point, 0, len(ls))
	for _, c := range ls {
		points = append(points, domain.Point{Lat: c.Lat(), Lon: c.Lon()})
	}
	return points, nil
}

func collectionPoints(fc *geojson.FeatureCollection) ([]domain.Point, error) {
	var lines []*geojson.Feature
	for _, f := range fc.Features {
		if _, ok := f.Geometry.(orb.LineString); ok {
			lines = append(lines, f)
		}
	}
	switch {
	case len(lines) == 1:
		return lineStringPoints(lines[0])
	case len(lines) > 1:
		return nil, apperrors.NewFormatError("Input contains more than one track feature")
	}

	// No line feature: treat as a collection of point features,
	// one track point per feature. Non-point features are skipped.
	var points []domain.Point
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		p := domain.Point{Lat: pt.Lat(), Lon: pt.Lon()}
		p.Timestamp = featureTimestamp(f)
		if acc, ok := featureNumber(f, "accuracy"); ok {
			p.Accuracy = &acc
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, apperrors.ErrNotATrack
	}
	return points, nil
}

// featureTimestamp достает временную метку из properties:
// число — unix-секунды, строка — RFC3339
func featureTimestamp(f *geojson.Feature) *time.Time {
	for _, key := range []string{"timestamp", "t"} {
		v, ok := f.Properties[key]
		if !ok {
			continue
		}
		switch ts := v.(type) {
		case float64:
			t := time.Unix(int64(ts), 0).UTC()
			return &t
		case string:
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

func featureNumber(f *geojson.Feature, key string) (float64, bool) {
	v, ok := f.Properties[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

// fillTimestamps синтезирует недостающие метки (index * 10s от эпохи),
// чтобы тело запроса к API всегда было полным
func fillTimestamps(points []domain.Point) {
	for i := range points {
		if points[i].Timestamp == nil {
			t := time.Unix(int64(i)*10, 0).UTC()
			points[i].Timestamp = &t
		}
	}
}

// OutputPath строит имя выходного файла: <base><suffix>.geojson
// рядом со входным файлом либо в outputDir
func (r *trackRepository) OutputPath(inputPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	return filepath.Join(dir, base+r.suffix+".geojson")
}

// Write сериализует исправленный трек в один LineString-Feature.
// Запись атомарная: временный файл в целевой директории, затем rename,
// чтобы отмена или сбой не оставили частично записанный файл.
func (r *trackRepository) Write(track *domain.CorrectedTrack, path string) error {
	ls := make(orb.LineString, 0, len(track.Points))
	for _, p := range track.Points {
		ls = append(ls, orb.Point{p.Lon, p.Lat})
	}

	f := geojson.NewFeature(ls)
	f.Properties = geojson.Properties{
		"point_count":       len(track.Points),
		"mode":              track.Summary.Mode,
		"batch_count":       track.Summary.BatchCount,
		"degraded_segments": track.Summary.Degraded(),
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(f)

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return apperrors.NewWriteError(path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snaptrack-*")
	if err != nil {
		return apperrors.NewWriteError(path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperrors.NewWriteError(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.NewWriteError(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperrors.NewWriteError(path, err)
	}

	r.logger.Debug("Track written",
		zap.String("path", path),
		zap.Int("points", len(track.Points)))

	return nil
}
