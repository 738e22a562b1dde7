package preparation

import "github.com/lightprotocol/forester/pkg/treetypes"

// AppendElement is one entry of an OutputQueueData triple
// `(leaf_index, account_hash, old_leaf)` (SPEC_FULL.md §3).
type AppendElement struct {
	LeafIndex   uint64
	AccountHash treetypes.Digest
	OldLeaf     treetypes.Digest
}

// OutputQueueData is the indexer's view of the output (append) queue,
// bounded to however many ready sub-batches the coordinator requested.
type OutputQueueData struct {
	InitialRoot     treetypes.Digest
	Elements        []AppendElement
	LeavesHashChains []treetypes.Digest // one per ZKP-sized sub-batch
	ZkpBatchSize    uint64
}

// NullifyElement is one entry of an InputQueueData quad
// `(leaf_index, account_hash, current_leaf, tx_hash)`.
type NullifyElement struct {
	LeafIndex   uint64
	AccountHash treetypes.Digest
	CurrentLeaf treetypes.Digest
	TxHash      treetypes.Digest
}

// InputQueueData is the indexer's view of the input (nullify) queue.
type InputQueueData struct {
	InitialRoot      treetypes.Digest
	Elements         []NullifyElement
	LeavesHashChains []treetypes.Digest
	ZkpBatchSize     uint64
}

// QueueFetchResult bundles what step 4 of the coordinator's iteration
// ("Fetch-and-prepare", SPEC_FULL.md §4.1) hands to the pipeline: both
// queues' bounded contents and the identifiers naming each sub-batch of
// work. The staging tree is not part of it.
type QueueFetchResult struct {
	Output        *OutputQueueData
	Input         *InputQueueData
	AppendBatchIDs  []treetypes.ProcessedBatchID
	NullifyBatchIDs []treetypes.ProcessedBatchID
}
