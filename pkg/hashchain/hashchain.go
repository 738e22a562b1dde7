// Package hashchain computes and verifies the running commitment the
// indexer attaches to each ZKP-sized sub-batch (SPEC_FULL.md glossary:
// "Hash chain"). Unlike a Merkle tree, a hash chain commits to an ORDERED
// sequence with no branching: chain[0] = H(leaf[0]), chain[i] =
// H(chain[i-1], leaf[i]). The final value is what the circuit input
// calls `hash_chain` (SPEC_FULL.md §6).
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrEmptyChain    = errors.New("hashchain: cannot commit to zero leaves")
	ErrInvalidLeaf   = errors.New("hashchain: leaf must be 32 bytes")
	ErrLengthMismatch = errors.New("hashchain: leaf count does not match chain length")
)

// Compute folds an ordered list of 32-byte leaves into the final
// hash-chain commitment. It returns every intermediate link as well,
// since a sub-batch's circuit input needs only the final value but
// verification needs the whole chain.
func Compute(leaves [][]byte) (links [][]byte, final []byte, err error) {
	if len(leaves) == 0 {
		return nil, nil, ErrEmptyChain
	}
	for i, leaf := range leaves {
		if len(leaf) != 32 {
			return nil, nil, fmt.Errorf("%w: leaf %d has %d bytes", ErrInvalidLeaf, i, len(leaf))
		}
	}

	links = make([][]byte, len(leaves))
	links[0] = chainLink(nil, leaves[0])
	for i := 1; i < len(leaves); i++ {
		links[i] = chainLink(links[i-1], leaves[i])
	}

	final = make([]byte, 32)
	copy(final, links[len(links)-1])
	return links, final, nil
}

// chainLink hashes the previous link (nil for the first leaf) with the
// next leaf. SHA256(prev || leaf) when prev is present, SHA256(leaf)
// otherwise — the degenerate base case of the same fold.
func chainLink(prev, leaf []byte) []byte {
	if prev == nil {
		h := sha256.Sum256(leaf)
		return h[:]
	}
	combined := make([]byte, 0, len(prev)+len(leaf))
	combined = append(combined, prev...)
	combined = append(combined, leaf...)
	h := sha256.Sum256(combined)
	return h[:]
}

// Verify recomputes the chain from leaves and confirms it ends at
// expectedFinal. It does not require the caller to have kept the
// intermediate links, unlike a Merkle inclusion proof.
func Verify(leaves [][]byte, expectedFinal []byte) (bool, error) {
	_, final, err := Compute(leaves)
	if err != nil {
		return false, err
	}
	if len(expectedFinal) != 32 {
		return false, fmt.Errorf("hashchain: expected final must be 32 bytes, got %d", len(expectedFinal))
	}
	return hex.EncodeToString(final) == hex.EncodeToString(expectedFinal), nil
}

// VerifyPrefix confirms that appending newLeaves to a chain whose current
// final link is priorFinal produces nextFinal. This is what the
// preparation step uses to confirm the indexer's hash-chain commitment
// for a single sub-batch without recomputing the whole queue from leaf 0
// (SPEC_FULL.md §4.3: "reads their hash-chain commitment").
func VerifyPrefix(priorFinal []byte, newLeaves [][]byte, nextFinal []byte) (bool, error) {
	if len(newLeaves) == 0 {
		return false, ErrEmptyChain
	}
	for i, leaf := range newLeaves {
		if len(leaf) != 32 {
			return false, fmt.Errorf("%w: leaf %d has %d bytes", ErrInvalidLeaf, i, len(leaf))
		}
	}

	var link []byte
	if len(priorFinal) == 0 {
		link = chainLink(nil, newLeaves[0])
		newLeaves = newLeaves[1:]
	} else {
		if len(priorFinal) != 32 {
			return false, fmt.Errorf("hashchain: priorFinal must be 32 bytes, got %d", len(priorFinal))
		}
		link = priorFinal
	}

	for _, leaf := range newLeaves {
		link = chainLink(link, leaf)
	}

	if len(nextFinal) != 32 {
		return false, fmt.Errorf("hashchain: nextFinal must be 32 bytes, got %d", len(nextFinal))
	}
	return hex.EncodeToString(link) == hex.EncodeToString(nextFinal), nil
}
