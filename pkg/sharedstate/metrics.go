package sharedstate

import (
	"time"

	"github.com/google/uuid"
)

// IterationMetrics records one iteration's shape and timing, appended to
// SharedState.IterationMetrics after each iteration that submits its
// work and passes post-validation; iterations that end early or fail
// are not recorded. ID
// distinguishes iterations in logs/traces when several are interleaved
// across trees (SPEC_FULL.md Domain Stack: "iteration identifiers in
// SharedState.IterationMetrics").
type IterationMetrics struct {
	ID             uuid.UUID
	StartedAt      time.Time
	Duration       time.Duration
	AppendBatches  int
	NullifyBatches int
	ItemsProcessed int
	Retries        int
	Err            string // empty on success
}

// CumulativeMetrics is the running aggregate across every iteration a
// SharedState has seen, including iterations folded in from a prior
// epoch's entry at cleanup time (SPEC_FULL.md §4.7).
type CumulativeMetrics struct {
	TotalIterations      int
	TotalAppendBatches   int
	TotalNullifyBatches  int
	TotalItemsProcessed  int
	TotalRetries         int
	MinIterationDuration time.Duration
	MaxIterationDuration time.Duration
	TotalDuration        time.Duration
}

// Add folds one iteration's metrics into the cumulative aggregate:
// counters sum, durations sum, and min/max extremes track accordingly
// (SPEC_FULL.md §4.7 step 1).
func (c *CumulativeMetrics) Add(m IterationMetrics) {
	c.TotalIterations++
	c.TotalAppendBatches += m.AppendBatches
	c.TotalNullifyBatches += m.NullifyBatches
	c.TotalItemsProcessed += m.ItemsProcessed
	c.TotalRetries += m.Retries
	c.TotalDuration += m.Duration

	if c.TotalIterations == 1 || m.Duration < c.MinIterationDuration {
		c.MinIterationDuration = m.Duration
	}
	if m.Duration > c.MaxIterationDuration {
		c.MaxIterationDuration = m.Duration
	}
}

// Merge folds another CumulativeMetrics aggregate into c — used when an
// older epoch's entry is being retired and its totals absorbed into the
// current epoch's SharedState (SPEC_FULL.md §4.7).
func (c *CumulativeMetrics) Merge(other CumulativeMetrics) {
	if other.TotalIterations == 0 {
		return
	}
	wasEmpty := c.TotalIterations == 0

	c.TotalIterations += other.TotalIterations
	c.TotalAppendBatches += other.TotalAppendBatches
	c.TotalNullifyBatches += other.TotalNullifyBatches
	c.TotalItemsProcessed += other.TotalItemsProcessed
	c.TotalRetries += other.TotalRetries
	c.TotalDuration += other.TotalDuration

	if wasEmpty || other.MinIterationDuration < c.MinIterationDuration {
		c.MinIterationDuration = other.MinIterationDuration
	}
	if other.MaxIterationDuration > c.MaxIterationDuration {
		c.MaxIterationDuration = other.MaxIterationDuration
	}
}
