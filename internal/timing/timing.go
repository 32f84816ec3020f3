package timing

import (
	"sync"
	"time"
)

// Pipeline stages recorded during a run.
const (
	StageEntities      = "extract_entities"
	StageRelationships = "extract_relationships"
	StageIngest        = "ingest"
	StageCheckpoint    = "checkpoint"
)

// StageStats accumulates the work done in one stage. Amount is measured in
// the stage's unit, e.g. bytes of text for extraction.
type StageStats struct {
	Calls    int64         `json:"calls"`
	Amount   int64         `json:"amount"`
	Duration time.Duration `json:"duration"`
}

// Recorder collects processing times per stage. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	stages map[string]StageStats
}

func NewRecorder() *Recorder {
	return &Recorder{stages: map[string]StageStats{}}
}

// AddProcessingTime records one call of stage that handled amount units.
func (r *Recorder) AddProcessingTime(stage string, amount int64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stages[stage]
	s.Calls++
	s.Amount += amount
	s.Duration += d
	r.stages[stage] = s
}

// Track starts a measurement and returns the function that records it.
//
//	defer rec.Track(timing.StageIngest, 1)()
func (r *Recorder) Track(stage string, amount int64) func() {
	start := time.Now()
	return func() {
		r.AddProcessingTime(stage, amount, time.Since(start))
	}
}

// PredictProcessingTime estimates how long stage needs for amount units
// from the average observed so far. It returns zero without observations.
func (r *Recorder) PredictProcessingTime(stage string, amount int64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stages[stage]
	if !ok || s.Amount <= 0 {
		return 0
	}
	return time.Duration(float64(s.Duration) / float64(s.Amount) * float64(amount))
}

// Stages returns a copy of the recorded stats.
func (r *Recorder) Stages() map[string]StageStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]StageStats, len(r.stages))
	for k, v := range r.stages {
		out[k] = v
	}
	return out
}
