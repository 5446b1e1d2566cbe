package metrics

import "time"

type StageMetrics struct {
	LoadMS          float64        `json:"load_ms"`
	ClassifyMS      float64        `json:"classify_ms"`
	ComputeMS       float64        `json:"compute_ms"`
	Chunks          int            `json:"chunks"`
	BytesIn         int64          `json:"bytes_in"`
	PeakBytes       int64          `json:"peak_bytes"`
	RecordsTotal    int            `json:"records_total"`
	EventsTotal     int            `json:"events_total"`
	EventsByKind    map[string]int `json:"events_by_kind"`
	LayoutsAfter    int            `json:"layouts_after_click"`
	PaintsAfter     int            `json:"paints_after_pivot"`
	RafsWithinClick int            `json:"rafs_within_click"`
	FafsBeforePaint int            `json:"fafs_before_paint"`
}

// SinceMS is the time elapsed since start in fractional milliseconds.
func SinceMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
