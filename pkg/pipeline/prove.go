package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/lightprotocol/forester/pkg/foresterrors"
	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/proverclient"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// runProve is Stage 2. It consumes chanA and, for each prepared batch,
// submits the proof request synchronously (to obtain a job id) then
// spawns an independent goroutine that polls that job to completion.
// Multiple polls run concurrently — the stage never waits for one before
// submitting the next. chanB is closed once chanA has drained and every
// spawned poll has reported a result. When verifier is non-nil, every
// completed proof is checked against it before being forwarded to Stage 3
// (SPEC_FULL.md §4.5 (NEW)).
func runProve(ctx context.Context, chanA <-chan indexedBatch, chanB chan<- indexedResult, prover proverclient.Client, verifier proverclient.Verifier, done chan<- struct{}) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(chanB)
		close(done)
	}()

	for item := range chanA {
		kind := proverclient.KindAppend
		if item.batch.Kind == preparation.KindNullify {
			kind = proverclient.KindUpdate
		}

		jobID, err := prover.SubmitAsync(ctx, kind, item.batch)
		if err != nil {
			chanB <- indexedResult{index: item.index, batch: item.batch, err: classifyPollError(item.batch, err)}
			continue
		}

		wg.Add(1)
		go func(item indexedBatch, jobID string) {
			defer wg.Done()
			proof, err := prover.PollCompletion(ctx, jobID)
			if err != nil {
				err = classifyPollError(item.batch, err)
			} else if verifier != nil {
				err = verifyLocally(verifier, item.batch, proof)
			}
			chanB <- indexedResult{index: item.index, batch: item.batch, proof: proof, err: err}
		}(item, jobID)
	}
}

// verifyLocally runs the optional Groth16 re-check. A Verify error or a
// false verdict both classify as a retryable proof-service failure: per
// LocalVerifier.Verify's contract, neither implies the staging tree
// diverged, only that the on-chain verifier's own rejection would.
func verifyLocally(verifier proverclient.Verifier, batch preparation.PreparedBatch, proof proverclient.Proof) error {
	publicInputs := []treetypes.Digest{batch.OldRoot(), batch.NewRoot(), batch.HashChain()}
	ok, err := verifier.Verify(proof, publicInputs)
	if err != nil {
		return &foresterrors.ProofServiceError{Message: "local verify", Cause: err}
	}
	if !ok {
		return &foresterrors.ProofServiceError{Message: fmt.Sprintf("local verify rejected proof for batch %d", batch.BatchID.BatchIndex)}
	}
	return nil
}

// classifyPollError applies the ConstraintError substring rule
// (SPEC_FULL.md §7) to a raw polling error's message, so Stage 3 never
// has to inspect prover error text itself.
func classifyPollError(batch preparation.PreparedBatch, err error) error {
	batchIndex := batch.BatchID.BatchIndex
	return foresterrors.ClassifyProverError(batchIndex, err.Error())
}
