package batch

import "sync/atomic"

// Progress is a point-in-time (processed, total) pair.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Fraction returns completion in [0,1]. An empty batch is complete.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return float64(p.Processed) / float64(p.Total)
}

// Tracker publishes batch progress. It is safe to read from any goroutine while a run updates it.
type Tracker struct {
	processed atomic.Int64
	total     atomic.Int64
}

func (t *Tracker) start(total int) {
	t.processed.Store(0)
	t.total.Store(int64(total))
}

func (t *Tracker) advance() {
	t.processed.Add(1)
}

// Progress returns the current snapshot.
func (t *Tracker) Progress() Progress {
	return Progress{Processed: int(t.processed.Load()), Total: int(t.total.Load())}
}
