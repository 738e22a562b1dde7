package preparation

import (
	"testing"

	"github.com/lightprotocol/forester/pkg/hashchain"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// chainOf computes the hash-chain commitment for a single ZKP-sized
// sub-batch over leaves, the same way PrepareNextAppend/PrepareNextNullify
// verify it — so fixtures stay self-consistent instead of carrying
// arbitrary bytes a real run would reject.
func chainOf(leaves ...treetypes.Digest) treetypes.Digest {
	raw := make([][]byte, len(leaves))
	for i, l := range leaves {
		raw[i] = l[:]
	}
	_, final, err := hashchain.Compute(raw)
	if err != nil {
		panic(err)
	}
	var d treetypes.Digest
	copy(d[:], final)
	return d
}

const testDepth = 4

func zeroProof(index uint64) staging.InclusionProof {
	return staging.InclusionProof{LeafIndex: index, Siblings: make([]treetypes.Digest, testDepth)}
}

func digest(b byte) treetypes.Digest {
	var d treetypes.Digest
	d[0] = b
	return d
}

func twoAppendFetch() *QueueFetchResult {
	return &QueueFetchResult{
		Output: &OutputQueueData{
			InitialRoot: treetypes.Digest{},
			Elements: []AppendElement{
				{LeafIndex: 0, AccountHash: digest(1)},
				{LeafIndex: 1, AccountHash: digest(2)},
			},
			LeavesHashChains: []treetypes.Digest{chainOf(digest(1)), chainOf(digest(2))},
			ZkpBatchSize:     1,
		},
		AppendBatchIDs: []treetypes.ProcessedBatchID{
			{ZkpBatchIndex: 0, IsAppend: true},
			{ZkpBatchIndex: 1, IsAppend: true},
		},
	}
}

func TestRootChain(t *testing.T) {
	fetch := twoAppendFetch()
	st := staging.New(treetypes.Digest{}, testDepth)
	ps := New(st, fetch)

	pattern := BuildPattern(2, 0)
	batches, err := ps.PrepareAllBatches(pattern, [][]staging.InclusionProof{
		{zeroProof(0)},
		{zeroProof(1)},
	}, nil)
	if err != nil {
		t.Fatalf("PrepareAllBatches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}

	if batches[0].OldRoot() != st.BaseRoot() {
		t.Fatalf("batches[0].OldRoot() = %x, want base root %x", batches[0].OldRoot(), st.BaseRoot())
	}
	if batches[0].NewRoot() != batches[1].OldRoot() {
		t.Fatalf("root chain broken: batches[0].NewRoot() = %x, batches[1].OldRoot() = %x", batches[0].NewRoot(), batches[1].OldRoot())
	}
	if batches[1].NewRoot() != st.CurrentRoot() {
		t.Fatalf("batches[1].NewRoot() = %x, want staging.CurrentRoot() %x", batches[1].NewRoot(), st.CurrentRoot())
	}
}

func TestPrepareNextAppendAdvancesCursorAndBatchID(t *testing.T) {
	fetch := twoAppendFetch()
	st := staging.New(treetypes.Digest{}, testDepth)
	ps := New(st, fetch)

	if ps.AppendBatchesRemaining() != 2 {
		t.Fatalf("AppendBatchesRemaining() = %d, want 2", ps.AppendBatchesRemaining())
	}

	b0, err := ps.PrepareNextAppend([]staging.InclusionProof{zeroProof(0)})
	if err != nil {
		t.Fatalf("PrepareNextAppend: %v", err)
	}
	if b0.BatchID != fetch.AppendBatchIDs[0] {
		t.Fatalf("BatchID = %v, want %v", b0.BatchID, fetch.AppendBatchIDs[0])
	}
	if ps.AppendBatchesRemaining() != 1 {
		t.Fatalf("AppendBatchesRemaining() = %d, want 1", ps.AppendBatchesRemaining())
	}

	if _, err := ps.PrepareNextAppend([]staging.InclusionProof{zeroProof(1)}); err != nil {
		t.Fatalf("PrepareNextAppend: %v", err)
	}
	if ps.AppendBatchesRemaining() != 0 {
		t.Fatalf("AppendBatchesRemaining() = %d, want 0", ps.AppendBatchesRemaining())
	}
	if _, err := ps.PrepareNextAppend([]staging.InclusionProof{zeroProof(2)}); err == nil {
		t.Fatal("expected error preparing past the last append sub-batch")
	}
}

func TestPrepareNextAppendRejectsWrongProofCount(t *testing.T) {
	fetch := twoAppendFetch()
	st := staging.New(treetypes.Digest{}, testDepth)
	ps := New(st, fetch)

	if _, err := ps.PrepareNextAppend([]staging.InclusionProof{zeroProof(0), zeroProof(1)}); err == nil {
		t.Fatal("expected error for mismatched proof count")
	}
}

func TestPrepareNextNullifyDerivesPathIndicesFromLeafIndex(t *testing.T) {
	combined, err := staging.HashPair(digest(9), digest(0x42))
	if err != nil {
		t.Fatalf("HashPair: %v", err)
	}
	fetch := &QueueFetchResult{
		Input: &InputQueueData{
			InitialRoot: treetypes.Digest{},
			Elements: []NullifyElement{
				{LeafIndex: 3, CurrentLeaf: digest(9), TxHash: digest(0x42)},
			},
			LeavesHashChains: []treetypes.Digest{chainOf(combined)},
			ZkpBatchSize:     1,
		},
		NullifyBatchIDs: []treetypes.ProcessedBatchID{{ZkpBatchIndex: 0, IsAppend: false}},
	}
	st := staging.New(treetypes.Digest{}, testDepth)
	ps := New(st, fetch)

	proof := zeroProof(3)
	proof.Leaf = digest(9)

	batch, err := ps.PrepareNextNullify([]staging.InclusionProof{proof})
	if err != nil {
		t.Fatalf("PrepareNextNullify: %v", err)
	}
	if batch.Kind != KindNullify {
		t.Fatalf("Kind = %v, want KindNullify", batch.Kind)
	}
	if batch.Nullify.PathIndices[0] != 3 {
		t.Fatalf("PathIndices[0] = %d, want 3", batch.Nullify.PathIndices[0])
	}
	if batch.Nullify.OldLeaves[0] != digest(9) {
		t.Fatalf("OldLeaves[0] = %x, want %x", batch.Nullify.OldLeaves[0], digest(9))
	}
}

func TestBuildPatternIsAppendThenNullify(t *testing.T) {
	pattern := BuildPattern(2, 1)
	if len(pattern) != 3 {
		t.Fatalf("len(pattern) = %d, want 3", len(pattern))
	}
	want := []Kind{KindAppend, KindAppend, KindNullify}
	for i, entry := range pattern {
		if entry.Kind != want[i] {
			t.Fatalf("pattern[%d].Kind = %v, want %v", i, entry.Kind, want[i])
		}
		if entry.Index != i {
			t.Fatalf("pattern[%d].Index = %d, want %d", i, entry.Index, i)
		}
	}
}
