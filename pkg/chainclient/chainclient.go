// Package chainclient is the reference RPC (chain) adapter (SPEC_FULL.md
// §6 NEW): batched multi-account fetch, single-account root fetch, and
// batched transaction send, built on go-ethereum's rpc/ethclient/bind
// stack. The Coordinator only depends on the Client interface below —
// never on this concrete type — so a test double never needs a live
// endpoint.
package chainclient

import (
	"context"

	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// Client is the consumed RPC interface from SPEC_FULL.md §6.
type Client interface {
	// FetchTreeAndQueue fetches the tree account and its output queue
	// account atomically — one round trip for both, satisfying step 1 of
	// the Coordinator's iteration ("one round-trip for both").
	FetchTreeAndQueue(ctx context.Context, tree treetypes.TreeID) (TreeAccount, OutputQueueAccount, error)

	// FetchRoot reads only the tree account's latest root, used for
	// post-validation (step 6).
	FetchRoot(ctx context.Context, tree treetypes.TreeID) (treetypes.Digest, error)

	// SubmitBatch sends one interleaved append+nullify transaction for a
	// Stage 3 group (at most 4 entries).
	SubmitBatch(ctx context.Context, tree treetypes.TreeID, group []preparation.PreparedBatch) (Signature, error)
}

// Signature is the opaque transaction identifier SubmitBatch returns.
type Signature [64]byte

// TreeAccount mirrors the on-chain tree account layout (SPEC_FULL.md §6):
// the root history ring buffer, the two rotating nullify batch
// descriptors, and their hash-chain store.
type TreeAccount struct {
	RootHistory     []treetypes.Digest
	NullifyBatches  [2]treetypes.BatchDescriptor
	NullifyChains   map[treetypes.ProcessedBatchID]treetypes.Digest
}

// LatestRoot returns the last element of the root history, or
// ErrNoRoot if the history is empty (SPEC_FULL.md §4.1 step 1: "fails
// with NoRoot if empty").
func (t TreeAccount) LatestRoot() (treetypes.Digest, error) {
	if len(t.RootHistory) == 0 {
		return treetypes.Digest{}, ErrNoRoot
	}
	return t.RootHistory[len(t.RootHistory)-1], nil
}

// OutputQueueAccount mirrors the on-chain output queue account layout:
// two rotating append batch descriptors and their hash-chain store.
type OutputQueueAccount struct {
	AppendBatches [2]treetypes.BatchDescriptor
	AppendChains  map[treetypes.ProcessedBatchID]treetypes.Digest
}
