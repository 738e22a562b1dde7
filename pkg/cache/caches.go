// Package cache implements PersistentCaches (SPEC_FULL.md §3/§4.7/§9):
// the two process-wide maps — (tree, epoch) → SharedState and tree →
// (StagingTree, last_root) — plus the epoch cleanup that runs when a
// coordinator is constructed for a new epoch. Both maps are
// lazy-initialized, mutex-protected, and hold cheap-to-clone handles; no
// network I/O is ever performed while a map lock is held.
package cache

import (
	"log"
	"sync"

	"github.com/lightprotocol/forester/pkg/sharedstate"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// StagingEntry is the per-tree staging cache entry: the optimistic
// staging tree plus the on-chain root it was last known to agree with.
// It survives epoch changes, unlike SharedState (SPEC_FULL.md §3,
// "StagingTree cache entry").
type StagingEntry struct {
	Tree     *staging.StagingTree
	LastRoot treetypes.Digest
}

// PersistentCaches holds the two process-wide maps. The zero value is
// usable; New is provided for symmetry with the rest of the package set
// and to attach a logger.
type PersistentCaches struct {
	statesMu sync.Mutex
	states   map[treetypes.TreeEpoch]*sharedstate.SharedState

	stagingMu sync.Mutex
	staging   map[treetypes.TreeID]*StagingEntry

	logger *log.Logger
}

// New constructs an empty PersistentCaches. Pass nil for logger to use
// the standard logger with this package's prefix.
func New(logger *log.Logger) *PersistentCaches {
	if logger == nil {
		logger = log.New(log.Writer(), "[Cache] ", log.LstdFlags)
	}
	return &PersistentCaches{
		states:  make(map[treetypes.TreeEpoch]*sharedstate.SharedState),
		staging: make(map[treetypes.TreeID]*StagingEntry),
		logger:  logger,
	}
}

// SharedStateFor returns the SharedState for (tree, epoch), constructing
// one anchored at currentRoot if absent. The returned handle is safe to
// use after the map lock is released — callers must not perform I/O
// while holding it implicitly by keeping the lock; SharedStateFor itself
// never blocks on I/O.
func (c *PersistentCaches) SharedStateFor(key treetypes.TreeEpoch, currentRoot treetypes.Digest) *sharedstate.SharedState {
	c.statesMu.Lock()
	defer c.statesMu.Unlock()

	if s, ok := c.states[key]; ok {
		return s
	}
	s := sharedstate.New(currentRoot)
	c.states[key] = s
	return s
}

// StagingFor returns the cached staging entry for tree, or nil if none
// exists.
func (c *PersistentCaches) StagingFor(tree treetypes.TreeID) *StagingEntry {
	c.stagingMu.Lock()
	defer c.stagingMu.Unlock()
	return c.staging[tree]
}

// SetStaging installs or replaces the staging cache entry for tree.
func (c *PersistentCaches) SetStaging(tree treetypes.TreeID, entry *StagingEntry) {
	c.stagingMu.Lock()
	defer c.stagingMu.Unlock()
	c.staging[tree] = entry
}

// InvalidateStaging removes the staging cache entry for tree, forcing
// the next iteration to rebuild it from chain.
func (c *PersistentCaches) InvalidateStaging(tree treetypes.TreeID) {
	c.stagingMu.Lock()
	defer c.stagingMu.Unlock()
	delete(c.staging, tree)
}

// CleanupOldEpochs implements SPEC_FULL.md §4.7: when a coordinator is
// constructed for (tree, currentEpoch), every entry for the same tree at
// a strictly older epoch has its cumulative metrics folded into an
// aggregate and is then removed. If the (tree, currentEpoch) entry
// already exists, the aggregate is merged into it.
func (c *PersistentCaches) CleanupOldEpochs(tree treetypes.TreeID, currentEpoch treetypes.Epoch) {
	c.statesMu.Lock()

	var aggregate sharedstate.CumulativeMetrics
	var toRemove []treetypes.TreeEpoch
	anyAggregated := false

	for key, s := range c.states {
		if key.Tree != tree || key.Epoch >= currentEpoch {
			continue
		}
		aggregate.Merge(s.Cumulative())
		toRemove = append(toRemove, key)
		anyAggregated = true
	}

	currentKey := treetypes.TreeEpoch{Tree: tree, Epoch: currentEpoch}
	current, currentExists := c.states[currentKey]

	for _, key := range toRemove {
		delete(c.states, key)
	}

	c.statesMu.Unlock()

	if anyAggregated && currentExists {
		current.MergeCumulative(aggregate)
		c.logger.Printf("merged metrics from %d older epoch(s) of tree %s into epoch %d", len(toRemove), tree, currentEpoch)
	}
}
