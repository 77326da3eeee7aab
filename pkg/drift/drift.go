// Copyright 2026 CAP Contributors
//
// Drift Analyzer
//
// Tracks agreement between shadow and enforced verdicts over a bounded
// ring buffer, so operators can watch a rollout's real-world effect
// before raising its percentage.

package drift

import (
	"sync"
	"time"

	"github.com/capassure/cap-agent/pkg/orchestrator"
)

// Record is one observed decision.
type Record struct {
	Timestamp time.Time
	PolicyID  string
	RequestID string
	Pair      orchestrator.VerdictPair
}

// isDrift reports whether a record's shadow and enforced verdicts disagree.
func (r Record) isDrift() bool {
	return r.Pair.Shadow != r.Pair.Enforced
}

// Stats summarizes a time window.
type Stats struct {
	TotalEvents int
	DriftEvents int
	DriftRatio  float64
}

// Analyzer is a bounded ring buffer of recent decisions. Safe for
// concurrent use.
type Analyzer struct {
	mu       sync.Mutex
	capacity int
	buf      []Record
	next     int
	filled   bool
	now      func() time.Time
}

// New constructs an Analyzer holding up to capacity records. capacity <= 0
// is rejected in favor of a sane default of 1.
func New(capacity int) *Analyzer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Analyzer{
		capacity: capacity,
		buf:      make([]Record, 0, capacity),
		now:      time.Now,
	}
}

// Record appends a decision, evicting the oldest entry once at capacity.
func (a *Analyzer) Record(policyID, requestID string, pair orchestrator.VerdictPair) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := Record{Timestamp: a.now(), PolicyID: policyID, RequestID: requestID, Pair: pair}
	if len(a.buf) < a.capacity {
		a.buf = append(a.buf, rec)
		return
	}
	a.buf[a.next] = rec
	a.next = (a.next + 1) % a.capacity
	a.filled = true
}

// snapshot returns a copy of all live records, oldest first.
func (a *Analyzer) snapshot() []Record {
	if !a.filled {
		out := make([]Record, len(a.buf))
		copy(out, a.buf)
		return out
	}
	out := make([]Record, 0, a.capacity)
	for i := 0; i < a.capacity; i++ {
		idx := (a.next + i) % a.capacity
		out = append(out, a.buf[idx])
	}
	return out
}

func (a *Analyzer) statsSince(cutoff time.Time) Stats {
	a.mu.Lock()
	records := a.snapshot()
	a.mu.Unlock()

	var stats Stats
	for _, r := range records {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		stats.TotalEvents++
		if r.isDrift() {
			stats.DriftEvents++
		}
	}
	if stats.TotalEvents > 0 {
		stats.DriftRatio = float64(stats.DriftEvents) / float64(stats.TotalEvents)
	}
	return stats
}

// Stats5m summarizes the trailing 5-minute window.
func (a *Analyzer) Stats5m() Stats {
	return a.statsSince(a.now().Add(-5 * time.Minute))
}

// StatsCustom summarizes the trailing window of the given duration.
func (a *Analyzer) StatsCustom(window time.Duration) Stats {
	return a.statsSince(a.now().Add(-window))
}

// DriftRatioCustom is the disagreement ratio over the trailing window of
// the given duration. Zero events yields ratio 0, not an error.
func (a *Analyzer) DriftRatioCustom(window time.Duration) float64 {
	return a.StatsCustom(window).DriftRatio
}

// DriftRatio5m is the trailing 5-minute disagreement ratio. Zero events
// yields ratio 0, not an error.
func (a *Analyzer) DriftRatio5m() float64 {
	return a.Stats5m().DriftRatio
}

// DriftEvents5m is the trailing 5-minute disagreement count.
func (a *Analyzer) DriftEvents5m() int {
	return a.Stats5m().DriftEvents
}

// RequestRate5m is the trailing 5-minute total decision count.
func (a *Analyzer) RequestRate5m() int {
	return a.Stats5m().TotalEvents
}

// ExceedsThreshold reports whether the 5-minute drift ratio strictly
// exceeds t. A ratio exactly equal to t does not trip it.
func (a *Analyzer) ExceedsThreshold(t float64) bool {
	return a.DriftRatio5m() > t
}
