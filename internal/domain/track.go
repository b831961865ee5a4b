package domain

import "time"

// Point — одна точка GPS-трека
type Point struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
}

// Track — неизменяемая упорядоченная последовательность точек.
// Порядок точек отражает порядок записи и никогда не меняется.
type Track struct {
	SourcePath string  `json:"source_path"`
	Points     []Point `json:"points"`
}

func (t *Track) Len() int {
	return len(t.Points)
}

// CorrectedTrack — итоговый трек после привязки к дорожной сети
type CorrectedTrack struct {
	Points  []Point    `json:"points"`
	Summary RunSummary `json:"summary"`
}

// RunSummary — сводка по одному прогону пайплайна
type RunSummary struct {
	Mode             string `json:"mode"`
	BatchCount       int    `json:"batch_count"`
	DegradedSegments []int  `json:"degraded_segments"`
	Requests         int    `json:"requests"`
	CacheHits        int    `json:"cache_hits"`
}

// Degraded возвращает число участков, оставшихся без привязки
func (s RunSummary) Degraded() int {
	return len(s.DegradedSegments)
}
