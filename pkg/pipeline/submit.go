package pipeline

import (
	"context"
	"log"

	"github.com/lightprotocol/forester/pkg/foresterrors"
	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// runSubmit is Stage 3. It consumes chanB, which may deliver out of
// order, re-sequences by pattern index via a buffer plus a cursor, and
// submits ready entries in groups of at most GroupSize. It returns the
// final_root — the last pattern entry's new_root — once every entry has
// been submitted.
func runSubmit(ctx context.Context, chanB <-chan indexedResult, pattern []preparation.PatternEntry, submitter Submitter, logger *log.Logger) (treetypes.Digest, int, error) {
	buffer := make(map[int]indexedResult)
	nextToSubmit := 0
	ready := make([]preparation.PreparedBatch, 0, GroupSize)
	var finalRoot treetypes.Digest
	itemsProcessed := 0
	total := len(pattern)

	drain := func() error {
		for nextToSubmit < total {
			result, ok := buffer[nextToSubmit]
			if !ok {
				break
			}
			delete(buffer, nextToSubmit)

			if result.err != nil {
				return result.err
			}

			ready = append(ready, result.batch)
			finalRoot = result.batch.NewRoot()
			itemsProcessed += batchSize(result.batch)
			nextToSubmit++

			if len(ready) == GroupSize {
				if err := submitGroup(ctx, submitter, &ready); err != nil {
					return err
				}
			}
		}
		return nil
	}

chanLoop:
	for {
		select {
		case result, ok := <-chanB:
			if !ok {
				break chanLoop
			}
			buffer[result.index] = result
			if err := drain(); err != nil {
				return treetypes.Digest{}, 0, err
			}
		case <-ctx.Done():
			return treetypes.Digest{}, 0, ctx.Err()
		}
	}

	if err := drain(); err != nil {
		return treetypes.Digest{}, 0, err
	}

	if len(ready) > 0 {
		if err := submitGroup(ctx, submitter, &ready); err != nil {
			return treetypes.Digest{}, 0, err
		}
	}

	if len(buffer) > 0 || nextToSubmit < total {
		return treetypes.Digest{}, 0, &foresterrors.UnsubmittedBatchesError{Remaining: total - nextToSubmit}
	}

	if logger != nil {
		logger.Printf("submitted %d pattern entries, final_root=%s", total, finalRoot)
	}

	return finalRoot, itemsProcessed, nil
}

func submitGroup(ctx context.Context, submitter Submitter, ready *[]preparation.PreparedBatch) error {
	if err := submitter.SubmitBatch(ctx, *ready); err != nil {
		return err
	}
	*ready = (*ready)[:0]
	return nil
}

// batchSize returns how many leaf-level items a PreparedBatch covers,
// for the items_processed count the coordinator reports.
func batchSize(b preparation.PreparedBatch) int {
	if b.Kind == preparation.KindAppend {
		return len(b.Append.Leaves)
	}
	return len(b.Nullify.OldLeaves)
}
