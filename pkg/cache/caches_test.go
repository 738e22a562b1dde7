package cache

import (
	"testing"
	"time"

	"github.com/lightprotocol/forester/pkg/sharedstate"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

func treeID(b byte) treetypes.TreeID {
	var t treetypes.TreeID
	t[0] = b
	return t
}

func TestSharedStateForCreatesOnce(t *testing.T) {
	c := New(nil)
	key := treetypes.TreeEpoch{Tree: treeID(1), Epoch: 5}

	s1 := c.SharedStateFor(key, treetypes.Digest{})
	s2 := c.SharedStateFor(key, treetypes.Digest{})
	if s1 != s2 {
		t.Fatal("SharedStateFor should return the same handle for the same key")
	}
}

func TestStagingInvalidateRemovesEntry(t *testing.T) {
	c := New(nil)
	tree := treeID(2)
	c.SetStaging(tree, &StagingEntry{Tree: staging.New(treetypes.Digest{}, 4), LastRoot: treetypes.Digest{}})

	if c.StagingFor(tree) == nil {
		t.Fatal("expected staging entry to be present")
	}
	c.InvalidateStaging(tree)
	if c.StagingFor(tree) != nil {
		t.Fatal("expected staging entry to be removed after invalidation")
	}
}

func TestCleanupRemovesOlderEpochs(t *testing.T) {
	c := New(nil)
	tree := treeID(3)

	c.SharedStateFor(treetypes.TreeEpoch{Tree: tree, Epoch: 4}, treetypes.Digest{})
	c.SharedStateFor(treetypes.TreeEpoch{Tree: tree, Epoch: 5}, treetypes.Digest{})
	c.SharedStateFor(treetypes.TreeEpoch{Tree: tree, Epoch: 6}, treetypes.Digest{})

	c.CleanupOldEpochs(tree, 6)

	if _, ok := c.states[treetypes.TreeEpoch{Tree: tree, Epoch: 4}]; ok {
		t.Fatal("epoch 4 entry should have been removed")
	}
	if _, ok := c.states[treetypes.TreeEpoch{Tree: tree, Epoch: 5}]; ok {
		t.Fatal("epoch 5 entry should have been removed")
	}
	if _, ok := c.states[treetypes.TreeEpoch{Tree: tree, Epoch: 6}]; !ok {
		t.Fatal("epoch 6 entry should remain")
	}
}

func TestCleanupOldEpochsMergesMetricsIntoCurrentEntry(t *testing.T) {
	c := New(nil)
	tree := treeID(4)

	old := c.SharedStateFor(treetypes.TreeEpoch{Tree: tree, Epoch: 5}, treetypes.Digest{})
	old.RecordIteration(sharedstate.IterationMetrics{Duration: 10 * time.Millisecond, ItemsProcessed: 3})

	current := c.SharedStateFor(treetypes.TreeEpoch{Tree: tree, Epoch: 6}, treetypes.Digest{})

	c.CleanupOldEpochs(tree, 6)

	cum := current.Cumulative()
	if cum.TotalItemsProcessed != 3 {
		t.Fatalf("TotalItemsProcessed = %d, want 3 (merged from epoch 5)", cum.TotalItemsProcessed)
	}
	if _, ok := c.states[treetypes.TreeEpoch{Tree: tree, Epoch: 5}]; ok {
		t.Fatal("epoch 5 entry should have been removed after merge")
	}
}

// TestCrossEpochStagingReuse confirms that staging entries are keyed by
// tree alone, not by (tree, epoch): a tree's in-memory StagingTree must
// survive an epoch rollover so the next epoch's Coordinator does not
// have to rebuild it from chain.
func TestCrossEpochStagingReuse(t *testing.T) {
	c := New(nil)
	tree := treeID(7)
	root := treetypes.Digest{}
	root[0] = 0x42

	c.SharedStateFor(treetypes.TreeEpoch{Tree: tree, Epoch: 1}, treetypes.Digest{})
	c.SetStaging(tree, &StagingEntry{Tree: staging.New(treetypes.Digest{}, 4), LastRoot: root})

	c.CleanupOldEpochs(tree, 2)
	c.SharedStateFor(treetypes.TreeEpoch{Tree: tree, Epoch: 2}, root)

	entry := c.StagingFor(tree)
	if entry == nil {
		t.Fatal("staging entry should survive an epoch rollover for the same tree")
	}
	if entry.LastRoot != root {
		t.Fatalf("LastRoot = %x, want %x", entry.LastRoot, root)
	}
}

func TestCleanupOldEpochsIgnoresOtherTrees(t *testing.T) {
	c := New(nil)
	treeA, treeB := treeID(5), treeID(6)

	c.SharedStateFor(treetypes.TreeEpoch{Tree: treeA, Epoch: 1}, treetypes.Digest{})
	c.SharedStateFor(treetypes.TreeEpoch{Tree: treeB, Epoch: 1}, treetypes.Digest{})
	c.SharedStateFor(treetypes.TreeEpoch{Tree: treeA, Epoch: 2}, treetypes.Digest{})

	c.CleanupOldEpochs(treeA, 2)

	if _, ok := c.states[treetypes.TreeEpoch{Tree: treeB, Epoch: 1}]; !ok {
		t.Fatal("cleanup for treeA should not remove treeB's entries")
	}
}
