// Package sharedstate implements SharedState (SPEC_FULL.md §3): the
// per-(tree, epoch) mutable record tracking the last confirmed root, the
// set of sub-batches already processed (on chain or in flight), and
// rolling performance metrics. It is the reader/writer cell described in
// SPEC_FULL.md §5 — readers (readiness counting, diagnostics) may
// overlap, writers exclude.
package sharedstate

import (
	"sync"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// SharedState is safe for concurrent use. It is always handed out as a
// pointer from PersistentCaches so every holder shares the same
// interior-mutable cell — cloning the pointer is the "cheap clone" the
// process-wide map's lock-release discipline relies on.
type SharedState struct {
	mu sync.RWMutex

	currentRoot      treetypes.Digest
	processedBatches map[treetypes.ProcessedBatchID]struct{}
	cumulative       CumulativeMetrics
	iterations       []IterationMetrics
}

// New creates a SharedState anchored at currentRoot with an empty
// processed set — the state of a (tree, epoch) pair the coordinator is
// seeing for the first time.
func New(currentRoot treetypes.Digest) *SharedState {
	return &SharedState{
		currentRoot:      currentRoot,
		processedBatches: make(map[treetypes.ProcessedBatchID]struct{}),
	}
}

// CurrentRoot returns the last root this SharedState was reconciled to.
func (s *SharedState) CurrentRoot() treetypes.Digest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRoot
}

// SetCurrentRoot updates the confirmed root, called at sync (step 1) and
// after a successful pipeline run (step 5) in the coordinator's
// iteration (SPEC_FULL.md §4.1).
func (s *SharedState) SetCurrentRoot(root treetypes.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRoot = root
}

// IsProcessed reports whether id is already in the processed set — used
// by readiness counting to skip sub-batches the forester has already
// claimed, whether confirmed on chain or only optimistically in flight.
func (s *SharedState) IsProcessed(id treetypes.ProcessedBatchID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processedBatches[id]
	return ok
}

// MarkProcessed adds id to the processed set. Marking an id already
// present is a no-op (SPEC_FULL.md §8, "Processed idempotence").
func (s *SharedState) MarkProcessed(id treetypes.ProcessedBatchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processedBatches[id] = struct{}{}
}

// MarkProcessedAll adds every id in ids to the processed set.
func (s *SharedState) MarkProcessedAll(ids []treetypes.ProcessedBatchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.processedBatches[id] = struct{}{}
	}
}

// ProcessedCount returns the number of distinct sub-batches currently
// recorded as processed.
func (s *SharedState) ProcessedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processedBatches)
}

// RecordIteration appends one iteration's metrics and folds them into
// the cumulative aggregate.
func (s *SharedState) RecordIteration(m IterationMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations = append(s.iterations, m)
	s.cumulative.Add(m)
}

// Cumulative returns a copy of the current cumulative metrics snapshot.
func (s *SharedState) Cumulative() CumulativeMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cumulative
}

// MergeCumulative folds another SharedState's cumulative metrics into
// this one — used by PersistentCaches when retiring an older epoch's
// entry for the same tree (SPEC_FULL.md §4.7).
func (s *SharedState) MergeCumulative(other CumulativeMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cumulative.Merge(other)
}
