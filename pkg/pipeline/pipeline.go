// Package pipeline implements the three-stage Prepare/Prove/Submit
// pipeline (SPEC_FULL.md §4.5): a single Prepare producer, a Prove stage
// that fans out proof-polling tasks freely, and a re-sequencing Submit
// stage that groups ready entries by 4 and submits them in pattern
// order.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/proverclient"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// ChannelCapacity is the bounded channel size both pipeline stages share
// (SPEC_FULL.md §4.5/§5).
const ChannelCapacity = 50

// GroupSize is the maximum number of ready entries Stage 3 submits in
// one on-chain transaction.
const GroupSize = 4

// indexedBatch carries a PreparedBatch with its pattern position so
// downstream stages can restore order after concurrent proving.
type indexedBatch struct {
	index int
	batch preparation.PreparedBatch
}

// indexedResult is what Stage 2 pushes into channel B: the same pattern
// position, plus either a proof or an error.
type indexedResult struct {
	index int
	batch preparation.PreparedBatch
	proof proverclient.Proof
	err   error
}

// Submitter is what Stage 3 calls once per group; the pipeline package
// does not itself know how to talk to chain.
type Submitter interface {
	SubmitBatch(ctx context.Context, group []preparation.PreparedBatch) error
}

// Result is what Run returns: the final root the last pattern entry
// transitioned to, and how many leaf-level items were processed.
type Result struct {
	FinalRoot      treetypes.Digest
	ItemsProcessed int
}

// Run drives one iteration's pipeline: walks pattern via ps, proves each
// batch through prover, and submits grouped results through submitter.
// It returns once every pattern entry has been submitted or a fatal
// error occurs.
func Run(
	ctx context.Context,
	ps *preparation.State,
	pattern []preparation.PatternEntry,
	appendProofs, nullifyProofs [][]staging.InclusionProof,
	prover proverclient.Client,
	verifier proverclient.Verifier,
	submitter Submitter,
	logger *log.Logger,
) (Result, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[Pipeline] ", log.LstdFlags)
	}

	chanA := make(chan indexedBatch, ChannelCapacity)
	chanB := make(chan indexedResult, ChannelCapacity)

	prepareErrCh := make(chan error, 1)
	go runPrepare(ps, pattern, appendProofs, nullifyProofs, chanA, prepareErrCh)

	proveDone := make(chan struct{})
	go runProve(ctx, chanA, chanB, prover, verifier, proveDone)

	finalRoot, itemsProcessed, submitErr := runSubmit(ctx, chanB, pattern, submitter, logger)
	<-proveDone

	if prepareErr := <-prepareErrCh; prepareErr != nil {
		return Result{}, prepareErr
	}
	if submitErr != nil {
		return Result{}, submitErr
	}

	return Result{FinalRoot: finalRoot, ItemsProcessed: itemsProcessed}, nil
}

// runPrepare is Stage 1: the single producer. It walks pattern
// synchronously and pushes (index, batch) into chanA, closing it when
// done (or on the first preparation error).
func runPrepare(
	ps *preparation.State,
	pattern []preparation.PatternEntry,
	appendProofs, nullifyProofs [][]staging.InclusionProof,
	chanA chan<- indexedBatch,
	errCh chan<- error,
) {
	defer close(chanA)

	nextAppend, nextNullify := 0, 0
	for _, entry := range pattern {
		var batch preparation.PreparedBatch
		var err error

		switch entry.Kind {
		case preparation.KindAppend:
			if nextAppend >= len(appendProofs) {
				errCh <- fmt.Errorf("pipeline: pattern entry %d wants an append sub-batch but no proofs remain", entry.Index)
				return
			}
			batch, err = ps.PrepareNextAppend(appendProofs[nextAppend])
			nextAppend++
		case preparation.KindNullify:
			if nextNullify >= len(nullifyProofs) {
				errCh <- fmt.Errorf("pipeline: pattern entry %d wants a nullify sub-batch but no proofs remain", entry.Index)
				return
			}
			batch, err = ps.PrepareNextNullify(nullifyProofs[nextNullify])
			nextNullify++
		}
		if err != nil {
			errCh <- err
			return
		}
		chanA <- indexedBatch{index: entry.Index, batch: batch}
	}
	errCh <- nil
}
