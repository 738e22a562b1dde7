package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lightprotocol/forester/pkg/cache"
	"github.com/lightprotocol/forester/pkg/chainclient"
	"github.com/lightprotocol/forester/pkg/config"
	"github.com/lightprotocol/forester/pkg/foresterrors"
	"github.com/lightprotocol/forester/pkg/indexerclient"
	"github.com/lightprotocol/forester/pkg/metrics"
	"github.com/lightprotocol/forester/pkg/pipeline"
	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/proverclient"
	"github.com/lightprotocol/forester/pkg/sharedstate"
	"github.com/lightprotocol/forester/pkg/staging"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// photonStaleSleep is the fixed backoff SPEC_FULL.md §4.1's retry state
// machine prescribes for the indexer-lag special case.
const photonStaleSleep = 500 * time.Millisecond

// Coordinator drives one (tree, epoch) pair through readiness detection,
// staging, preparation, pipelined proving, and submission (SPEC_FULL.md
// §4.1). It is constructed once per (tree, epoch) and its Process method
// is the `process()` contract from spec.md §4.1.
type Coordinator struct {
	Tree  treetypes.TreeID
	Epoch treetypes.Epoch
	Depth uint8

	Chain   chainclient.Client
	Indexer indexerclient.Client
	Prover  proverclient.Client
	Caches  *cache.PersistentCaches
	Config  *config.Config
	Metrics metrics.Recorder
	Logger  *log.Logger

	// Verifier, if set, re-checks every proof locally before Stage 3
	// submits it (SPEC_FULL.md §4.5 (NEW)).
	Verifier proverclient.Verifier

	// Snapshot, if set, receives a write-only record of the confirmed
	// root after every successful iteration (SPEC_FULL.md §4.7 NEW). It
	// is never consulted to seed Caches — a restarted forester always
	// rebuilds its staging tree from chain, per the same section's
	// "write-only from the coordinator's perspective" rule.
	Snapshot *cache.DiskSnapshot

	shared *sharedstate.SharedState
}

// New constructs a Coordinator for (tree, epoch). Construction itself
// performs the epoch cleanup of SPEC_FULL.md §4.7: the (tree, epoch)
// SharedState entry is created first (anchored at the zero root — step 1
// of the first iteration overwrites it with the real on-chain root), so
// that if older epochs of the same tree have cumulative metrics to fold,
// CleanupOldEpochs has a live current entry to merge them into rather than
// discarding the aggregate.
func New(
	tree treetypes.TreeID,
	epoch treetypes.Epoch,
	depth uint8,
	chain chainclient.Client,
	indexer indexerclient.Client,
	prover proverclient.Client,
	caches *cache.PersistentCaches,
	cfg *config.Config,
	recorder metrics.Recorder,
	logger *log.Logger,
) *Coordinator {
	if depth == 0 {
		depth = staging.DefaultDepth
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if recorder == nil {
		recorder = metrics.NoOp{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[Coordinator] ", log.LstdFlags)
	}

	key := treetypes.TreeEpoch{Tree: tree, Epoch: epoch}
	shared := caches.SharedStateFor(key, treetypes.Digest{})
	caches.CleanupOldEpochs(tree, epoch)

	return &Coordinator{
		Tree:    tree,
		Epoch:   epoch,
		Depth:   depth,
		Chain:   chain,
		Indexer: indexer,
		Prover:  prover,
		Caches:  caches,
		Config:  cfg,
		Metrics: recorder,
		Logger:  logger,
		shared:  shared,
	}
}

// Process runs the inner loop until no ready batches remain or a fatal
// error occurs (spec.md §4.1, "process() → number_of_items_processed_or_error").
func (c *Coordinator) Process(ctx context.Context) (int, error) {
	if c.Config.Hints.InputQueueHint == 0 && c.Config.Hints.OutputQueueHint == 0 {
		return 0, nil
	}

	threshold := c.Config.RetryThreshold
	if threshold <= 0 {
		threshold = 10
	}

	totalProcessed := 0
	consecutiveRetries := 0

	for {
		n, done, err := c.iterate(ctx)
		if err == nil {
			consecutiveRetries = 0
			totalProcessed += n
			c.Metrics.IncIterations("success")
			if c.Snapshot != nil {
				if err := c.Snapshot.Record(c.Tree, c.shared.CurrentRoot()); err != nil {
					c.Logger.Printf("warm-start snapshot: %v", err)
				}
			}
			if done {
				return totalProcessed, nil
			}
			continue
		}

		if !foresterrors.IsRetryable(err) {
			c.Caches.InvalidateStaging(c.Tree)
			c.Metrics.IncIterations("fatal")
			return totalProcessed, err
		}

		consecutiveRetries++
		c.Metrics.IncRetries(retryReason(err))
		if consecutiveRetries >= threshold {
			c.Caches.InvalidateStaging(c.Tree)
			c.Metrics.IncIterations("retry_threshold_exceeded")
			return totalProcessed, nil
		}

		if foresterrors.RequiresResync(err) {
			c.Caches.InvalidateStaging(c.Tree)
		}
		if foresterrors.IsStale(err) {
			select {
			case <-time.After(photonStaleSleep):
			case <-ctx.Done():
				return totalProcessed, ctx.Err()
			}
		}
	}
}

// iterate performs exactly the seven steps of one loop pass. done reports
// that both queues had zero ready sub-batches, so Process should stop
// without error.
func (c *Coordinator) iterate(ctx context.Context) (processed int, done bool, err error) {
	syncStart := time.Now()
	treeAcct, queueAcct, err := c.Chain.FetchTreeAndQueue(ctx, c.Tree)
	if err != nil {
		return 0, false, err
	}

	root, err := treeAcct.LatestRoot()
	if err != nil {
		if err == chainclient.ErrNoRoot {
			return 0, false, &foresterrors.NoRootError{Tree: c.Tree}
		}
		return 0, false, err
	}

	c.shared.SetCurrentRoot(root)
	reconcileProcessed(c.shared, treeAcct, queueAcct)
	c.Metrics.ObserveSyncDuration(time.Since(syncStart).Seconds())

	// Step 2: cache freshness.
	entry := c.Caches.StagingFor(c.Tree)
	if entry != nil && entry.LastRoot != root {
		c.Caches.InvalidateStaging(c.Tree)
		entry = nil
	}

	// Step 3: readiness.
	appendReady := CountReady(queueAcct.AppendBatches, true, c.shared)
	nullifyReady := CountReady(treeAcct.NullifyBatches, false, c.shared)
	c.Metrics.ObserveReadiness(appendReady, nullifyReady)
	if appendReady == 0 && nullifyReady == 0 {
		return 0, true, nil
	}

	appendReady = capHint(appendReady, c.Config.Hints.OutputQueueHint)
	nullifyReady = capHint(nullifyReady, c.Config.Hints.InputQueueHint)

	// Step 4: fetch-and-prepare.
	resp, err := c.Indexer.GetQueueElementsV2(ctx, c.Tree, indexerclient.Request{
		OutputQueueLimit: uint16(appendReady),
		InputQueueLimit:  uint16(nullifyReady),
	})
	if err != nil {
		return 0, false, err
	}
	if appendReady > 0 {
		if got := resp.InitialRoots["output"]; got != root {
			return 0, false, &foresterrors.PhotonStaleError{Queue: "output", PhotonRoot: got, OnChainRoot: root}
		}
	}
	if nullifyReady > 0 {
		if got := resp.InitialRoots["input"]; got != root {
			return 0, false, &foresterrors.PhotonStaleError{Queue: "input", PhotonRoot: got, OnChainRoot: root}
		}
	}

	var stagingTree *staging.StagingTree
	if entry != nil {
		stagingTree = entry.Tree
	} else {
		stagingTree = staging.New(root, c.Depth)
	}

	ladder, err := zeroHashLadder(c.Depth)
	if err != nil {
		return 0, false, err
	}
	appendProofs, err := appendProofsFor(resp.Output, ladder)
	if err != nil {
		return 0, false, err
	}
	nullifyProofs, err := nullifyProofsFor(resp.Input, ladder)
	if err != nil {
		return 0, false, err
	}

	fetch := &preparation.QueueFetchResult{
		Output:          resp.Output,
		Input:           resp.Input,
		AppendBatchIDs:  ReadyBatchIDs(queueAcct.AppendBatches, true, c.shared, appendReady),
		NullifyBatchIDs: ReadyBatchIDs(treeAcct.NullifyBatches, false, c.shared, nullifyReady),
	}

	ps := preparation.New(stagingTree, fetch)
	pattern := preparation.BuildPattern(len(fetch.AppendBatchIDs), len(fetch.NullifyBatchIDs))

	// Step 5: pipelined execute.
	pipelineStart := time.Now()
	submitter := &chainSubmitter{client: c.Chain, tree: c.Tree}
	result, err := pipeline.Run(ctx, ps, pattern, appendProofs, nullifyProofs, c.Prover, c.Verifier, submitter, c.Logger)
	c.Metrics.ObservePipelineDuration(time.Since(pipelineStart).Seconds())
	if err != nil {
		return 0, false, err
	}
	c.shared.SetCurrentRoot(result.FinalRoot)
	c.Caches.SetStaging(c.Tree, &cache.StagingEntry{Tree: stagingTree, LastRoot: result.FinalRoot})

	// Step 6: post-validate.
	submitStart := time.Now()
	actualRoot, err := c.Chain.FetchRoot(ctx, c.Tree)
	c.Metrics.ObserveSubmitDuration(time.Since(submitStart).Seconds())
	if err != nil {
		return 0, false, err
	}
	if actualRoot != result.FinalRoot {
		return 0, false, &foresterrors.RootChangedError{Phase: "post-validate", Expected: result.FinalRoot, Actual: actualRoot}
	}

	// Step 7: mark processed.
	processedIDs := append(append([]treetypes.ProcessedBatchID{}, fetch.AppendBatchIDs...), fetch.NullifyBatchIDs...)
	c.shared.MarkProcessedAll(processedIDs)
	c.shared.RecordIteration(sharedstate.IterationMetrics{
		ID:             uuid.New(),
		StartedAt:      syncStart,
		Duration:       time.Since(syncStart),
		AppendBatches:  len(fetch.AppendBatchIDs),
		NullifyBatches: len(fetch.NullifyBatchIDs),
		ItemsProcessed: result.ItemsProcessed,
	})

	return result.ItemsProcessed, false, nil
}

func capHint(ready int, hint uint16) int {
	if hint == 0 {
		return ready
	}
	if ready > int(hint) {
		return int(hint)
	}
	return ready
}

// reconcileProcessed implements the second half of step 1: recompute
// processed-batch inclusion from each descriptor's num_inserted_zkps, so
// on-chain confirmations are reflected in SharedState even if they landed
// from another forester's submission.
func reconcileProcessed(shared *sharedstate.SharedState, tree chainclient.TreeAccount, queue chainclient.OutputQueueAccount) {
	for _, b := range queue.AppendBatches {
		for i := uint64(0); i < b.NumInsertedZkps; i++ {
			shared.MarkProcessed(treetypes.ProcessedBatchID{BatchIndex: b.BatchIndex, ZkpBatchIndex: i, IsAppend: true})
		}
	}
	for _, b := range tree.NullifyBatches {
		for i := uint64(0); i < b.NumInsertedZkps; i++ {
			shared.MarkProcessed(treetypes.ProcessedBatchID{BatchIndex: b.BatchIndex, ZkpBatchIndex: i, IsAppend: false})
		}
	}
}

// retryReason labels a metrics.Recorder.IncRetries call from a classified
// error, falling back to a generic label for an unclassified retryable
// error (which should not occur, since IsRetryable already required a
// ForesterError, but keeps the metric total reachable in all cases).
func retryReason(err error) string {
	switch err.(type) {
	case *foresterrors.PhotonStaleError:
		return "photon_stale"
	case *foresterrors.ConstraintError:
		return "constraint_error"
	case *foresterrors.RootChangedError:
		return "root_changed"
	case *foresterrors.ProofServiceError:
		return "proof_service"
	default:
		return fmt.Sprintf("unclassified:%T", err)
	}
}
