package pipeline

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightprotocol/forester/pkg/hashchain"
	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/proverclient"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// chainOf computes the single-sub-batch hash-chain commitment over
// leaves the same way preparation.State verifies it, so fixtures built
// here survive that check instead of carrying arbitrary bytes.
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

// fakeProver lets a test control exactly when each pattern entry's proof
// resolves, by blocking PollCompletion on a per-entry channel the test
// closes explicitly. SubmitAsync hands out job ids in call order, which —
// because Stage 1 is a single producer and Stage 2 reads chanA
// synchronously before spawning its poll goroutine — matches pattern order.
type fakeProver struct {
	counter int32
	release []chan struct{}
}

func newFakeProver(n int) *fakeProver {
	release := make([]chan struct{}, n)
	for i := range release {
		release[i] = make(chan struct{})
	}
	return &fakeProver{release: release}
}

func (p *fakeProver) SubmitAsync(_ context.Context, _ proverclient.Kind, _ preparation.PreparedBatch) (string, error) {
	idx := int(atomic.AddInt32(&p.counter, 1) - 1)
	return strconv.Itoa(idx), nil
}

func (p *fakeProver) PollCompletion(_ context.Context, jobID string) (proverclient.Proof, error) {
	idx, err := strconv.Atoi(jobID)
	if err != nil {
		return proverclient.Proof{}, err
	}
	<-p.release[idx]
	var proof proverclient.Proof
	proof.A[0] = byte(idx)
	return proof, nil
}

func zeroProof(index uint64, depth uint8) staging.InclusionProof {
	return staging.InclusionProof{LeafIndex: index, Siblings: make([]treetypes.Digest, depth)}
}

// buildFixture assembles a 3-append/2-nullify iteration: three single-leaf
// append sub-batches at fresh indices, two single-leaf nullify sub-batches
// against leaves the tree has not otherwise touched, each one a
// one-element ZKP-sized sub-batch so the pattern has 5 entries total.
func buildFixture(depth uint8) (*preparation.State, []preparation.PatternEntry, [][]staging.InclusionProof, [][]staging.InclusionProof) {
	tree := staging.New(treetypes.Digest{}, depth)

	outElems := make([]preparation.AppendElement, 3)
	appendProofs := make([][]staging.InclusionProof, 3)
	appendChains := make([]treetypes.Digest, 3)
	for i := range outElems {
		var hash treetypes.Digest
		hash[0] = byte(0x10 + i)
		outElems[i] = preparation.AppendElement{LeafIndex: uint64(i), AccountHash: hash}
		appendProofs[i] = []staging.InclusionProof{zeroProof(uint64(i), depth)}
		appendChains[i] = chainOf(hash)
	}

	inElems := make([]preparation.NullifyElement, 2)
	nullifyProofs := make([][]staging.InclusionProof, 2)
	nullifyChains := make([]treetypes.Digest, 2)
	for i := range inElems {
		var leaf, tx treetypes.Digest
		leaf[0] = byte(0x30 + i)
		tx[0] = byte(0x50 + i)
		leafIndex := uint64(10 + i)
		inElems[i] = preparation.NullifyElement{LeafIndex: leafIndex, CurrentLeaf: leaf, TxHash: tx}
		proof := zeroProof(leafIndex, depth)
		proof.Leaf = leaf
		nullifyProofs[i] = []staging.InclusionProof{proof}

		combined, err := staging.HashPair(leaf, tx)
		if err != nil {
			panic(err)
		}
		nullifyChains[i] = chainOf(combined)
	}

	fetch := &preparation.QueueFetchResult{
		Output: &preparation.OutputQueueData{
			Elements:         outElems,
			LeavesHashChains: appendChains,
			ZkpBatchSize:     1,
		},
		Input: &preparation.InputQueueData{
			Elements:         inElems,
			LeavesHashChains: nullifyChains,
			ZkpBatchSize:     1,
		},
	}

	ps := preparation.New(tree, fetch)
	pattern := preparation.BuildPattern(3, 2)
	return ps, pattern, appendProofs, nullifyProofs
}

func TestPipelineRunOrdersSubmissionsDespiteConcurrentProve(t *testing.T) {
	const depth = 4
	ps, pattern, appendProofs, nullifyProofs := buildFixture(depth)

	prover := newFakeProver(len(pattern))
	submitter := &fakeSubmitter{}

	type runOutcome struct {
		result Result
		err    error
	}
	outcome := make(chan runOutcome, 1)
	go func() {
		res, err := Run(context.Background(), ps, pattern, appendProofs, nullifyProofs, prover, nil, submitter, nil)
		outcome <- runOutcome{res, err}
	}()

	// Resolve proofs in reverse pattern order so chanB sees results out of
	// sequence; Stage 3 must still submit them in pattern order.
	for i := len(pattern) - 1; i >= 0; i-- {
		time.Sleep(time.Millisecond)
		close(prover.release[i])
	}

	var out runOutcome
	select {
	case out = <-outcome:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not complete")
	}
	if out.err != nil {
		t.Fatalf("Run: %v", out.err)
	}

	if len(submitter.groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(submitter.groups))
	}
	if len(submitter.groups[0]) != GroupSize {
		t.Fatalf("first group size = %d, want %d", len(submitter.groups[0]), GroupSize)
	}
	if len(submitter.groups[1]) != 1 {
		t.Fatalf("second group size = %d, want 1", len(submitter.groups[1]))
	}

	all := append(append([]preparation.PreparedBatch{}, submitter.groups[0]...), submitter.groups[1]...)
	for i := 1; i < len(all); i++ {
		if all[i-1].NewRoot() != all[i].OldRoot() {
			t.Fatalf("root chain broken between submitted entries %d and %d", i-1, i)
		}
	}
	if out.result.FinalRoot != all[len(all)-1].NewRoot() {
		t.Fatalf("FinalRoot = %x, want %x", out.result.FinalRoot, all[len(all)-1].NewRoot())
	}
	if out.result.ItemsProcessed != len(pattern) {
		t.Fatalf("ItemsProcessed = %d, want %d", out.result.ItemsProcessed, len(pattern))
	}
}
