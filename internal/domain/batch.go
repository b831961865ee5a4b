package domain

// Batch — непрерывный фрагмент трека размером не больше лимита API.
// Соседние батчи делят ровно одну граничную точку.
type Batch struct {
	Index  int     `json:"index"`
	Points []Point `json:"points"`
}

type SnapStatus string

const (
	// SnapStatusSuccess - все точки батча привязаны
	SnapStatusSuccess SnapStatus = "success"
	// SnapStatusPartial - сервис вернул не все точки, пропуски оставлены как есть
	SnapStatusPartial SnapStatus = "partial"
	// SnapStatusFailure - привязка батча не удалась, деталь в Err
	SnapStatusFailure SnapStatus = "failure"
)

// SnapResult — результат привязки одного батча
type SnapResult struct {
	BatchIndex int        `json:"batch_index"`
	Status     SnapStatus `json:"status"`
	Points     []Point    `json:"points,omitempty"`
	Err        string     `json:"error,omitempty"`
}

// Snapped сообщает, есть ли у результата пригодные точки
func (r *SnapResult) Snapped() bool {
	return r.Status == SnapStatusSuccess || r.Status == SnapStatusPartial
}
