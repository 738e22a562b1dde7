// Package staging implements the StagingTree (SPEC_FULL.md §4.2): the
// forester's in-memory, optimistic view of one on-chain batched Merkle
// tree. It tracks a base root plus an ordered list of pending leaf
// updates produced by batches the forester has prepared but the chain has
// not yet confirmed, and derives the resulting root without materializing
// the whole tree — only the nodes a touched leaf's path actually needs.
package staging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// DefaultDepth is the tree height used when a caller does not override it;
// it matches the on-chain program's fixed-depth concurrent Merkle tree.
const DefaultDepth = 26

var (
	ErrProofDepthMismatch = errors.New("staging: inclusion proof depth does not match tree depth")
	ErrLeafIndexOutOfRange = errors.New("staging: leaf index exceeds tree capacity")
)

// InclusionProof is the per-leaf witness the indexer supplies: the
// sibling hash at every level from the leaf up to (but not including)
// the root, ordered leaf-first, plus the leaf's current value.
type InclusionProof struct {
	LeafIndex uint64
	Leaf      treetypes.Digest
	Siblings  []treetypes.Digest
}

// Update is one applied leaf mutation, recorded so StagingTree.Updates()
// can be replayed for diagnostics or handed to a PreparedBatch.
type Update struct {
	LeafIndex  uint64
	OldLeaf    treetypes.Digest
	NewLeaf    treetypes.Digest
	IsAppend   bool
	RootBefore treetypes.Digest
	RootAfter  treetypes.Digest
}

// nodeKey addresses one node in the sparse tree by (level, index-at-level).
// Level 0 is the leaf level.
type nodeKey struct {
	level uint8
	index uint64
}

// StagingTree is safe for concurrent reads; the single Prepare-stage
// producer is the only writer (SPEC_FULL.md §5: the stage is a single
// producer), so mutation methods take the write lock defensively rather
// than assuming single-threaded access.
type StagingTree struct {
	mu sync.RWMutex

	depth    uint8
	baseRoot treetypes.Digest
	current  treetypes.Digest
	updates  []Update

	// nodes holds every node value learned from an inclusion proof or
	// produced by recomputing a path after an update. It is the "exactly
	// the nodes needed" store the StagingTree invariant describes: a
	// node only enters this map when some update's path touches it.
	nodes map[nodeKey]treetypes.Digest
}

// New constructs a StagingTree anchored at baseRoot with no pending
// updates — the state of a freshly (re)synced tree before any batch has
// been prepared against it.
func New(baseRoot treetypes.Digest, depth uint8) *StagingTree {
	if depth == 0 {
		depth = DefaultDepth
	}
	return &StagingTree{
		depth:    depth,
		baseRoot: baseRoot,
		current:  baseRoot,
		nodes:    make(map[nodeKey]treetypes.Digest),
	}
}

// BaseRoot returns the anchor root this staging tree was built or last
// reset against.
func (t *StagingTree) BaseRoot() treetypes.Digest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseRoot
}

// CurrentRoot returns the root after every applied update.
func (t *StagingTree) CurrentRoot() treetypes.Digest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Updates returns a copy of the ordered list of applied updates.
func (t *StagingTree) Updates() []Update {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Update, len(t.updates))
	copy(out, t.updates)
	return out
}

// IsFresh reports whether this staging tree's base root still matches
// the given on-chain root. The Coordinator's own freshness check
// compares the cache entry's last root instead and does not call this.
func (t *StagingTree) IsFresh(onChainRoot treetypes.Digest) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseRoot == onChainRoot
}

// ApplyAppend advances the tree by inserting newLeaf at leafIndex. proof
// must be an inclusion proof for that leaf as of the moment it was still
// untouched — i.e. relative to base_root if no prior update in this
// staging tree has touched the leaf's path, or the caller's own bookkeeping
// if it has (the Coordinator never re-touches an index within one
// iteration, so this case does not arise in practice).
func (t *StagingTree) ApplyAppend(proof InclusionProof, newLeaf treetypes.Digest) (treetypes.Digest, error) {
	return t.apply(proof, newLeaf, true)
}

// ApplyNullify advances the tree by marking the leaf at leafIndex spent.
// The new leaf value commits the nullifying transaction hash to the prior
// leaf value so an observer can later prove which transaction spent it.
func (t *StagingTree) ApplyNullify(proof InclusionProof, txHash treetypes.Digest) (treetypes.Digest, error) {
	newLeaf, err := hashPair(proof.Leaf, txHash)
	if err != nil {
		return treetypes.Digest{}, fmt.Errorf("staging: derive nullified leaf: %w", err)
	}
	return t.apply(proof, newLeaf, false)
}

func (t *StagingTree) apply(proof InclusionProof, newLeaf treetypes.Digest, isAppend bool) (treetypes.Digest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if uint8(len(proof.Siblings)) != t.depth {
		return treetypes.Digest{}, fmt.Errorf("%w: got %d want %d", ErrProofDepthMismatch, len(proof.Siblings), t.depth)
	}
	if proof.LeafIndex >= (uint64(1) << t.depth) {
		return treetypes.Digest{}, ErrLeafIndexOutOfRange
	}

	rootBefore := t.current
	oldLeaf := proof.Leaf

	t.nodes[nodeKey{0, proof.LeafIndex}] = newLeaf
	current := newLeaf
	index := proof.LeafIndex

	for level := uint8(0); level < t.depth; level++ {
		sibling := t.siblingAt(level, index, proof.Siblings[level])

		var parent treetypes.Digest
		var err error
		if index%2 == 0 {
			parent, err = hashPair(current, sibling)
		} else {
			parent, err = hashPair(sibling, current)
		}
		if err != nil {
			return treetypes.Digest{}, fmt.Errorf("staging: hash level %d: %w", level, err)
		}

		index /= 2
		t.nodes[nodeKey{level + 1, index}] = parent
		current = parent
	}

	t.current = current
	t.updates = append(t.updates, Update{
		LeafIndex:  proof.LeafIndex,
		OldLeaf:    oldLeaf,
		NewLeaf:    newLeaf,
		IsAppend:   isAppend,
		RootBefore: rootBefore,
		RootAfter:  current,
	})

	return current, nil
}

// siblingAt prefers a node value this staging tree has already learned
// (because an earlier update in this same tree touched it) over the
// proof-supplied value, which only reflects base_root. This is what lets
// a sequence of updates whose paths intersect stay consistent without
// re-fetching a proof from the indexer between every batch.
func (t *StagingTree) siblingAt(level uint8, index uint64, fromProof treetypes.Digest) treetypes.Digest {
	siblingIndex := index ^ 1
	if cached, ok := t.nodes[nodeKey{level, siblingIndex}]; ok {
		return cached
	}
	return fromProof
}
