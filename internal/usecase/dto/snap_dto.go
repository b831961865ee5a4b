package dto

// SnapRunRequest - параметры одного прогона пайплайна
type SnapRunRequest struct {
	InputPath string
	OutputDir string
}

// SnapRunResponse - итог прогона для вызывающей оболочки
type SnapRunResponse struct {
	OutputPath       string  `json:"output_path"`
	PointsIn         int     `json:"points_in"`
	PointsOut        int     `json:"points_out"`
	TrackLengthKm    float64 `json:"track_length_km"`
	BatchCount       int     `json:"batch_count"`
	DegradedSegments []int   `json:"degraded_segments"`
	Requests         int     `json:"requests"`
	CacheHits        int     `json:"cache_hits"`
}
