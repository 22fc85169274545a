// Package history implements the detection-history confirmation stage, a
// bounded sliding window of per-frame detection counts that suppresses
// single-frame false positives.
package history

import (
	"sync"
)

// Tracker keeps the last N per-frame detection counts, oldest evicted first.
// A detection is confirmed once the window holds at least the required number
// of nonzero counts.
type Tracker struct {
	mu       sync.Mutex
	counts   []int
	size     int
	required int
}

// NewTracker creates a tracker with the given window size and required
// number of nonzero frames. Invalid values fall back to size 3, required 1.
func NewTracker(size, required int) *Tracker {
	if size <= 0 {
		size = 3
	}
	if required <= 0 {
		required = 1
	}
	if required > size {
		required = size
	}
	return &Tracker{
		counts:   make([]int, 0, size),
		size:     size,
		required: required,
	}
}

// Record appends a per-frame detection count, evicting the oldest entry
// beyond capacity, and reports whether the window now confirms a detection.
func (t *Tracker) Record(count int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts = append(t.counts, count)
	if len(t.counts) > t.size {
		t.counts = t.counts[len(t.counts)-t.size:]
	}
	return t.confirmedLocked()
}

// Confirmed reports whether the current window confirms a detection without
// recording a new frame.
func (t *Tracker) Confirmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmedLocked()
}

func (t *Tracker) confirmedLocked() bool {
	positive := 0
	for _, c := range t.counts {
		if c > 0 {
			positive++
		}
	}
	return positive >= t.required
}

// Reset clears the window. Called when a monitoring session stops.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = t.counts[:0]
}

// Snapshot returns a copy of the current window, oldest first.
func (t *Tracker) Snapshot() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, len(t.counts))
	copy(out, t.counts)
	return out
}

// Len returns the number of frames currently in the window.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}
