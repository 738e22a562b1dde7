package preparation

import (
	"fmt"

	"github.com/lightprotocol/forester/pkg/foresterrors"
	"github.com/lightprotocol/forester/pkg/hashchain"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// State is the cursor over one iteration's queue data (SPEC_FULL.md §3
// PreparationState). It is created once per iteration and consumed by
// Stage 1 of the pipeline, producing exactly one PreparedBatch per call
// to PrepareNextAppend or PrepareNextNullify until both cursors are
// exhausted.
type State struct {
	Staging *staging.StagingTree

	appendLeafIndices []uint64
	appendBatchIndex  int
	nullifyBatchIndex int

	fetch *QueueFetchResult
}

// New builds a PreparationState from a freshly (re)synced staging tree
// and the bounded queue data the coordinator fetched for this iteration.
func New(st *staging.StagingTree, fetch *QueueFetchResult) *State {
	var appendLeafIndices []uint64
	if fetch.Output != nil {
		appendLeafIndices = make([]uint64, len(fetch.Output.Elements))
		for i, e := range fetch.Output.Elements {
			appendLeafIndices[i] = e.LeafIndex
		}
	}
	return &State{
		Staging:           st,
		appendLeafIndices: appendLeafIndices,
		fetch:             fetch,
	}
}

// AppendBatchesRemaining reports how many append sub-batches this cursor
// has not yet prepared.
func (s *State) AppendBatchesRemaining() int {
	if s.fetch.Output == nil {
		return 0
	}
	total := len(s.fetch.Output.LeavesHashChains)
	return total - s.appendBatchIndex
}

// NullifyBatchesRemaining reports how many nullify sub-batches this
// cursor has not yet prepared.
func (s *State) NullifyBatchesRemaining() int {
	if s.fetch.Input == nil {
		return 0
	}
	total := len(s.fetch.Input.LeavesHashChains)
	return total - s.nullifyBatchIndex
}

// PrepareNextAppend produces the PreparedBatch for the next append
// sub-batch in the output queue data, advances the staging tree by those
// leaves, and bumps the append cursor (SPEC_FULL.md §4.3).
func (s *State) PrepareNextAppend(proofs []staging.InclusionProof) (PreparedBatch, error) {
	q := s.fetch.Output
	if q == nil || s.appendBatchIndex >= len(q.LeavesHashChains) {
		return PreparedBatch{}, fmt.Errorf("preparation: no append sub-batch left to prepare")
	}

	size := int(q.ZkpBatchSize)
	start := s.appendBatchIndex * size
	end := start + size
	if end > len(q.Elements) {
		return PreparedBatch{}, fmt.Errorf("preparation: append sub-batch %d out of range (have %d elements)", s.appendBatchIndex, len(q.Elements))
	}
	if len(proofs) != size {
		return PreparedBatch{}, fmt.Errorf("preparation: expected %d inclusion proofs for append sub-batch %d, got %d", size, s.appendBatchIndex, len(proofs))
	}

	elements := q.Elements[start:end]
	oldRoot := s.Staging.CurrentRoot()
	startIndex := elements[0].LeafIndex
	leaves := make([]treetypes.Digest, len(elements))
	leafBytes := make([][]byte, len(elements))
	for i, elem := range elements {
		leaves[i] = elem.AccountHash
		leafBytes[i] = elem.AccountHash[:]
	}

	wantChain := q.LeavesHashChains[s.appendBatchIndex]
	ok, err := hashchain.VerifyPrefix(nil, leafBytes, wantChain[:])
	if err != nil {
		return PreparedBatch{}, fmt.Errorf("preparation: verify append hash chain %d: %w", s.appendBatchIndex, err)
	}
	if !ok {
		return PreparedBatch{}, &foresterrors.HashChainMismatchError{Queue: "output", BatchIndex: s.appendBatchIndex}
	}

	for i, elem := range elements {
		if _, err := s.Staging.ApplyAppend(proofs[i], elem.AccountHash); err != nil {
			return PreparedBatch{}, fmt.Errorf("preparation: apply append leaf %d: %w", elem.LeafIndex, err)
		}
	}

	newRoot := s.Staging.CurrentRoot()
	batchID := treetypes.ProcessedBatchID{IsAppend: true, ZkpBatchIndex: uint64(s.appendBatchIndex)}
	if s.appendBatchIndex < len(s.fetch.AppendBatchIDs) {
		batchID = s.fetch.AppendBatchIDs[s.appendBatchIndex]
	}

	batch := PreparedBatch{
		Kind:    KindAppend,
		BatchID: batchID,
		Append: &AppendInputs{
			OldRoot:    oldRoot,
			NewRoot:    newRoot,
			StartIndex: startIndex,
			BatchSize:  uint64(len(elements)),
			HashChain:  q.LeavesHashChains[s.appendBatchIndex],
			Leaves:     leaves,
		},
	}
	s.appendBatchIndex++
	return batch, nil
}

// PrepareNextNullify produces the PreparedBatch for the next nullify
// sub-batch in the input queue data.
func (s *State) PrepareNextNullify(proofs []staging.InclusionProof) (PreparedBatch, error) {
	q := s.fetch.Input
	if q == nil || s.nullifyBatchIndex >= len(q.LeavesHashChains) {
		return PreparedBatch{}, fmt.Errorf("preparation: no nullify sub-batch left to prepare")
	}

	size := int(q.ZkpBatchSize)
	start := s.nullifyBatchIndex * size
	end := start + size
	if end > len(q.Elements) {
		return PreparedBatch{}, fmt.Errorf("preparation: nullify sub-batch %d out of range (have %d elements)", s.nullifyBatchIndex, len(q.Elements))
	}
	if len(proofs) != size {
		return PreparedBatch{}, fmt.Errorf("preparation: expected %d inclusion proofs for nullify sub-batch %d, got %d", size, s.nullifyBatchIndex, len(proofs))
	}

	elements := q.Elements[start:end]
	oldRoot := s.Staging.CurrentRoot()
	pathIndices := make([]uint64, len(elements))
	oldLeaves := make([]treetypes.Digest, len(elements))
	txHashes := make([]treetypes.Digest, len(elements))
	leafBytes := make([][]byte, len(elements))
	for i, elem := range elements {
		pathIndices[i] = elem.LeafIndex
		oldLeaves[i] = elem.CurrentLeaf
		txHashes[i] = elem.TxHash

		combined, err := staging.HashPair(elem.CurrentLeaf, elem.TxHash)
		if err != nil {
			return PreparedBatch{}, fmt.Errorf("preparation: combine nullify leaf %d: %w", elem.LeafIndex, err)
		}
		leafBytes[i] = combined[:]
	}

	wantChain := q.LeavesHashChains[s.nullifyBatchIndex]
	ok, err := hashchain.VerifyPrefix(nil, leafBytes, wantChain[:])
	if err != nil {
		return PreparedBatch{}, fmt.Errorf("preparation: verify nullify hash chain %d: %w", s.nullifyBatchIndex, err)
	}
	if !ok {
		return PreparedBatch{}, &foresterrors.HashChainMismatchError{Queue: "input", BatchIndex: s.nullifyBatchIndex}
	}

	for i, elem := range elements {
		if _, err := s.Staging.ApplyNullify(proofs[i], elem.TxHash); err != nil {
			return PreparedBatch{}, fmt.Errorf("preparation: apply nullify leaf %d: %w", elem.LeafIndex, err)
		}
	}

	newRoot := s.Staging.CurrentRoot()
	batchID := treetypes.ProcessedBatchID{IsAppend: false, ZkpBatchIndex: uint64(s.nullifyBatchIndex)}
	if s.nullifyBatchIndex < len(s.fetch.NullifyBatchIDs) {
		batchID = s.fetch.NullifyBatchIDs[s.nullifyBatchIndex]
	}

	batch := PreparedBatch{
		Kind:    KindNullify,
		BatchID: batchID,
		Nullify: &NullifyInputs{
			OldRoot:     oldRoot,
			NewRoot:     newRoot,
			PathIndices: pathIndices,
			OldLeaves:   oldLeaves,
			TxHashes:    txHashes,
			HashChain:   q.LeavesHashChains[s.nullifyBatchIndex],
		},
	}
	s.nullifyBatchIndex++
	return batch, nil
}
