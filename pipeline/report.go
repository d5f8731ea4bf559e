package pipeline

import "time"

// Report summarizes per-row outcomes of one stage run.
type Report struct {
	Action    Action `json:"action"`
	Rows      int    `json:"rows"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	// Variants counts generated augmentation rows.
	Variants int `json:"variants,omitempty"`
}

// Recorder receives stage metrics. internal/metrics.Collector implements it.
type Recorder interface {
	RecordStage(action, status string, duration time.Duration)
	RecordRowOutcome(action, outcome string, n int)
	RecordDecodeWarnings(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordStage(string, string, time.Duration) {}
func (nopRecorder) RecordRowOutcome(string, string, int)      {}
func (nopRecorder) RecordDecodeWarnings(int)                  {}

// NopRecorder discards all measurements.
func NopRecorder() Recorder { return nopRecorder{} }

func recordReport(rec Recorder, r Report) {
	rec.RecordRowOutcome(string(r.Action), "succeeded", r.Succeeded)
	rec.RecordRowOutcome(string(r.Action), "failed", r.Failed)
	if r.Variants > 0 {
		rec.RecordRowOutcome(string(r.Action), "variant", r.Variants)
	}
}
