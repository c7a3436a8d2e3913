// Package stats maintains running statistics over a stream of distance
// readings: count, incremental mean, extremes, and a bounded window of the
// most recent values.
package stats

import (
	"sync"
	"time"

	montstats "github.com/montanaflynn/stats"
	"go.viam.com/utils"
)

// DefaultCapacity bounds the recent-reading window when no capacity is given.
const DefaultCapacity = 100

// Tracker accumulates readings. It is safe for concurrent use; snapshots are
// value copies, so readers never observe a partially updated aggregate.
type Tracker struct {
	mu        sync.Mutex
	capacity  int
	count     int
	mean      float64
	min       float64
	max       float64
	recent    []float64
	startedAt time.Time
}

// NewTracker returns an empty tracker keeping at most capacity recent
// readings. A non-positive capacity means DefaultCapacity.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{capacity: capacity, startedAt: time.Now()}
}

// Record folds one reading into the aggregate. The mean is updated
// incrementally rather than recomputed from history, so it does not lose
// precision as the window evicts old readings.
func (t *Tracker) Record(value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	t.mean += (value - t.mean) / float64(t.count)
	if t.count == 1 || value < t.min {
		t.min = value
	}
	if t.count == 1 || value > t.max {
		t.max = value
	}

	t.recent = append(t.recent, value)
	if len(t.recent) > t.capacity {
		t.recent = t.recent[len(t.recent)-t.capacity:]
	}
}

// Reset clears the aggregate back to its freshly constructed state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count = 0
	t.mean = 0
	t.min = 0
	t.max = 0
	t.recent = nil
	t.startedAt = time.Now()
}

// Snapshot returns an immutable copy of the aggregate.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := make([]float64, len(t.recent))
	copy(recent, t.recent)

	snap := Snapshot{
		Count:   t.count,
		Mean:    t.mean,
		Min:     t.min,
		Max:     t.max,
		Recent:  recent,
		Elapsed: time.Since(t.startedAt),
	}
	if len(recent) > 0 {
		// Median and standard deviation only describe the recent window;
		// montanaflynn errors solely on empty input, which is excluded here.
		var err error
		snap.Median, err = montstats.Median(recent)
		utils.UncheckedError(err)
		snap.StdDev, err = montstats.StandardDeviation(recent)
		utils.UncheckedError(err)
	}
	return snap
}

// Snapshot is a torn-read-free view of a Tracker at one point in time.
type Snapshot struct {
	// Count, Mean, Min, and Max cover every recorded reading.
	Count int
	Mean  float64
	Min   float64
	Max   float64

	// Median and StdDev cover only the Recent window.
	Median float64
	StdDev float64

	// Recent holds the most recent readings, oldest first.
	Recent []float64

	// Elapsed is the time since construction or the last Reset.
	Elapsed time.Duration
}

// Range reports the spread between the largest and smallest recorded reading.
func (s Snapshot) Range() float64 {
	return s.Max - s.Min
}
