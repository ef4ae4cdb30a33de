// Package stats maintains the running counters and derived rate/ETA figures
// for a scraping run. All totals are append-only; snapshot reads return an
// immutable copy safe for concurrent use.
package stats

import (
	"sync"
	"time"
)

// DistributionSnapshot is a read-only copy of the distribution engine's
// lifetime counters.
type DistributionSnapshot struct {
	SuccessCount  int `json:"success_count"`
	FailureCount  int `json:"failure_count"`
	TotalAttempts int `json:"total_attempts"`
}

// Snapshot is an immutable point-in-time copy of the aggregator state.
type Snapshot struct {
	// TotalProcessed equals SuccessfulScrapes + FailedScrapes at every
	// observation point
	TotalProcessed    int `json:"total_processed"`
	SuccessfulScrapes int `json:"successful_scrapes"`
	FailedScrapes     int `json:"failed_scrapes"`
	// FilteredOut counts the subset of FailedScrapes rejected by the
	// filter rather than lost to fetch failures
	FilteredOut int `json:"filtered_out"`
	// CurrentRate is records per second since the run started
	CurrentRate float64 `json:"current_rate"`
	// BandwidthUsed is the cumulative bytes transferred
	BandwidthUsed int64 `json:"bandwidth_used"`
	// EstimatedTimeRemaining is seconds left at the current rate, zero
	// when the rate is zero
	EstimatedTimeRemaining float64 `json:"estimated_time_remaining"`
	// AutoAdd holds the latest distribution snapshot, if any
	AutoAdd *DistributionSnapshot `json:"auto_add_stats,omitempty"`
	// StartTime is when the run began
	StartTime time.Time `json:"start_time"`
}

// Aggregator accumulates per-record outcomes. Safe for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	total     int
	succeeded int
	failed    int
	filtered  int
	rate      float64
	eta       float64
	bandwidth int64
	autoAdd   *DistributionSnapshot

	target int
	start  time.Time
	now    func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator for a run targeting the given number
// of items. The run clock starts immediately.
func NewAggregator(target int, opts ...Option) *Aggregator {
	a := &Aggregator{
		target: target,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	return a
}

// RecordSuccess records one accepted record.
func (a *Aggregator) RecordSuccess() {
	a.record(true, false)
}

// RecordFailure records one failed outcome: a fetch that produced no record.
func (a *Aggregator) RecordFailure() {
	a.record(false, false)
}

// RecordFiltered records one record rejected by the filter. It counts into
// the failed bucket, keeping total = successful + failed, and additionally
// into the filtered counter.
func (a *Aggregator) RecordFiltered() {
	a.record(false, true)
}

func (a *Aggregator) record(success, filtered bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if success {
		a.succeeded++
	} else {
		a.failed++
	}
	if filtered {
		a.filtered++
	}

	elapsed := a.now().Sub(a.start).Seconds()
	if elapsed > 0 {
		a.rate = float64(a.total) / elapsed
	}

	remaining := a.target - a.total
	if remaining < 0 {
		remaining = 0
	}
	if a.rate > 0 {
		a.eta = float64(remaining) / a.rate
	} else {
		a.eta = 0
	}
}

// SetBandwidth records the cumulative bytes transferred so far.
func (a *Aggregator) SetBandwidth(bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bandwidth = bytes
}

// AttachDistribution replaces the nested distribution stats with the
// latest totals.
func (a *Aggregator) AttachDistribution(snap DistributionSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	copied := snap
	a.autoAdd = &copied
}

// Snapshot returns an immutable copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		TotalProcessed:         a.total,
		SuccessfulScrapes:      a.succeeded,
		FailedScrapes:          a.failed,
		FilteredOut:            a.filtered,
		CurrentRate:            a.rate,
		BandwidthUsed:          a.bandwidth,
		EstimatedTimeRemaining: a.eta,
		StartTime:              a.start,
	}
	if a.autoAdd != nil {
		copied := *a.autoAdd
		snap.AutoAdd = &copied
	}
	return snap
}
