package engine

import (
	"math"
	"sync"
	"time"
)

// speedWindow is the EWMA averaging window spec.md §4.8 names ("the last
// ~10s").
const speedWindow = 10 * time.Second

// speedTracker computes a time-decayed exponentially-weighted moving
// average of bytes/second, sampled on each write rather than on a fixed
// tick, so a burst of small writes still converges to the right rate.
type speedTracker struct {
	mu       sync.Mutex
	lastTime time.Time
	bps      float64
}

func newSpeedTracker() *speedTracker {
	return &speedTracker{lastTime: time.Now()}
}

// Sample folds n newly-written bytes observed at now into the average and
// returns the current bytes/second estimate.
func (s *speedTracker) Sample(n int64, now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	dt := now.Sub(s.lastTime).Seconds()
	if dt <= 0 {
		dt = 0.001
	}
	instant := float64(n) / dt

	decay := math.Exp(-dt / speedWindow.Seconds())
	s.bps = s.bps*decay + instant*(1-decay)
	s.lastTime = now
	return s.bps
}

func (s *speedTracker) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bps
}
