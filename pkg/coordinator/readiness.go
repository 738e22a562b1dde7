// Package coordinator implements the top-level per-(tree, epoch) state
// machine (SPEC_FULL.md §4.1): the seven-step iteration loop, the retry
// state machine, and the wiring that turns the external adapters
// (chainclient, indexerclient, proverclient) plus the process-wide caches
// into one runnable `process()` call.
package coordinator

import (
	"github.com/lightprotocol/forester/pkg/sharedstate"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// CountReady implements SPEC_FULL.md §4.6: for each of a queue's two
// rotating batches, an Inserted batch contributes zero; otherwise the
// contribution is `current_zkp_batch_index - num_inserted_zkps` minus
// however many of those sub-batches shared already has marked processed
// (on-chain confirmed or this forester's own optimistic in-flight work).
func CountReady(batches [2]treetypes.BatchDescriptor, isAppend bool, shared *sharedstate.SharedState) int {
	total := 0
	for _, b := range batches {
		total += countReadyForBatch(b, isAppend, shared)
	}
	return total
}

func countReadyForBatch(b treetypes.BatchDescriptor, isAppend bool, shared *sharedstate.SharedState) int {
	if b.ReadyCount() == 0 {
		return 0
	}
	count := 0
	for i := b.NumInsertedZkps; i < b.CurrentZkpBatchIndex; i++ {
		id := treetypes.ProcessedBatchID{BatchIndex: b.BatchIndex, ZkpBatchIndex: i, IsAppend: isAppend}
		if !shared.IsProcessed(id) {
			count++
		}
	}
	return count
}

// ReadyBatchIDs returns up to limit ProcessedBatchIDs for batches' not-yet-
// processed sub-batches, in ascending (BatchIndex, ZkpBatchIndex) order —
// the same deterministic order the indexer is expected to return queue
// contents in, so the identifiers line up positionally with the bounded
// fetch the coordinator requests in step 4.
func ReadyBatchIDs(batches [2]treetypes.BatchDescriptor, isAppend bool, shared *sharedstate.SharedState, limit int) []treetypes.ProcessedBatchID {
	ids := make([]treetypes.ProcessedBatchID, 0, limit)
	for _, b := range batches {
		if len(ids) >= limit {
			break
		}
		if b.ReadyCount() == 0 {
			continue
		}
		for i := b.NumInsertedZkps; i < b.CurrentZkpBatchIndex && len(ids) < limit; i++ {
			id := treetypes.ProcessedBatchID{BatchIndex: b.BatchIndex, ZkpBatchIndex: i, IsAppend: isAppend}
			if !shared.IsProcessed(id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
