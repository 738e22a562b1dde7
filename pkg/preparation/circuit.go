// Package preparation implements the cursor that walks one iteration's
// queue data and the interleaving pattern, producing one PreparedBatch
// per pattern entry while advancing a StagingTree (SPEC_FULL.md §4.3).
package preparation

import (
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// AppendInputs are the bit-exact circuit inputs for one append sub-batch
// (SPEC_FULL.md §6, "Circuit input encodings").
type AppendInputs struct {
	OldRoot    treetypes.Digest
	NewRoot    treetypes.Digest
	StartIndex uint64
	BatchSize  uint64
	HashChain  treetypes.Digest
	Leaves     []treetypes.Digest
}

// NullifyInputs are the bit-exact circuit inputs for one nullify
// sub-batch.
type NullifyInputs struct {
	OldRoot     treetypes.Digest
	NewRoot     treetypes.Digest
	PathIndices []uint64
	OldLeaves   []treetypes.Digest
	TxHashes    []treetypes.Digest
	HashChain   treetypes.Digest
}

// Kind distinguishes the two PreparedBatch variants.
type Kind uint8

const (
	KindAppend Kind = iota
	KindNullify
)

func (k Kind) String() string {
	if k == KindAppend {
		return "append"
	}
	return "nullify"
}

// PreparedBatch is the tagged union `{Append(inputs) | Nullify(inputs)}`
// from SPEC_FULL.md §3. Exactly one of Append / Nullify is populated,
// selected by Kind.
type PreparedBatch struct {
	Kind      Kind
	BatchID   treetypes.ProcessedBatchID
	Append    *AppendInputs
	Nullify   *NullifyInputs
}

// OldRoot returns the old_root field common to both variants, used by
// callers enforcing the root-chain ordering contract without a type
// switch.
func (b PreparedBatch) OldRoot() treetypes.Digest {
	if b.Kind == KindAppend {
		return b.Append.OldRoot
	}
	return b.Nullify.OldRoot
}

// NewRoot returns the new_root field common to both variants.
func (b PreparedBatch) NewRoot() treetypes.Digest {
	if b.Kind == KindAppend {
		return b.Append.NewRoot
	}
	return b.Nullify.NewRoot
}

// HashChain returns the hash_chain field common to both variants, the
// third public input a circuit exposes alongside old_root/new_root.
func (b PreparedBatch) HashChain() treetypes.Digest {
	if b.Kind == KindAppend {
		return b.Append.HashChain
	}
	return b.Nullify.HashChain
}
