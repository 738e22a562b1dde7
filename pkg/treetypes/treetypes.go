// Package treetypes holds the identifiers and small value types shared by
// every other forester package: tree identity, epoch, root digests, batch
// descriptors, and the processed-batch identifier used to dedupe work
// across overlapping iterations.
package treetypes

import (
	"encoding/hex"
	"fmt"
)

// Digest is a 32-byte field element: a root, a leaf hash, or a hash-chain
// commitment. All three share the same wire shape per SPEC_FULL.md §3.
type Digest [32]byte

// String renders the digest as a lowercase hex string.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// DigestFromHex decodes a hex string into a Digest.
func DigestFromHex(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("treetypes: invalid digest hex: %w", err)
	}
	if len(b) != 32 {
		return d, fmt.Errorf("treetypes: digest must be 32 bytes, got %d", len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Root is the tree root after some prefix of applied updates.
type Root = Digest

// TreeID is the opaque 32-byte key identifying one batched Merkle tree.
type TreeID [32]byte

func (t TreeID) String() string {
	return hex.EncodeToString(t[:])
}

// Epoch is the monotonic protocol-level assignment window a tree belongs
// to. Metrics and processed-batch bookkeeping are scoped per (TreeID, Epoch).
type Epoch uint64

// TreeEpoch is the composite key used by the process-wide caches (§4
// PersistentCaches / §4.7 Cleanup of old epochs).
type TreeEpoch struct {
	Tree  TreeID
	Epoch Epoch
}

// BatchState is the on-chain lifecycle state of one rotating queue batch.
type BatchState uint8

const (
	BatchStateFill BatchState = iota
	BatchStateFull
	BatchStateInserted
)

func (s BatchState) String() string {
	switch s {
	case BatchStateFill:
		return "fill"
	case BatchStateFull:
		return "full"
	case BatchStateInserted:
		return "inserted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// BatchIndex selects one of the two rotating batches a queue maintains.
type BatchIndex uint8

const (
	BatchIndexZero BatchIndex = 0
	BatchIndexOne  BatchIndex = 1
)

// BatchDescriptor mirrors the on-chain per-batch bookkeeping fields
// (SPEC_FULL.md §3 Batch): current fill state, how many ZKP-sized
// sub-batches are full, how many of those have already landed on chain,
// the prover-sized slice width, and the leaf index the batch starts at.
type BatchDescriptor struct {
	BatchIndex            BatchIndex
	State                 BatchState
	CurrentZkpBatchIndex  uint64
	NumInsertedZkps       uint64
	ZkpBatchSize          uint64
	StartIndex            uint64
}

// ReadyCount returns how many ZKP-sized sub-batches of this descriptor are
// full but not yet inserted on chain, per the Batch invariant in SPEC_FULL.md §3:
// `num_inserted_zkps <= current_zkp_batch_index`, and an Inserted batch
// contributes zero regardless of the counters.
func (b BatchDescriptor) ReadyCount() uint64 {
	if b.State == BatchStateInserted {
		return 0
	}
	if b.NumInsertedZkps > b.CurrentZkpBatchIndex {
		return 0
	}
	return b.CurrentZkpBatchIndex - b.NumInsertedZkps
}

// ProcessedBatchID uniquely names one sub-batch of proving work within one
// queue: which rotating batch, which ZKP-sized slice of it, and whether it
// is an append or a nullify sub-batch.
type ProcessedBatchID struct {
	BatchIndex    BatchIndex
	ZkpBatchIndex uint64
	IsAppend      bool
}

func (p ProcessedBatchID) String() string {
	kind := "nullify"
	if p.IsAppend {
		kind = "append"
	}
	return fmt.Sprintf("%s/batch%d/zkp%d", kind, p.BatchIndex, p.ZkpBatchIndex)
}
