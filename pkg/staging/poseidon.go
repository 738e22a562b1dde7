package staging

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// poseidonWidth is the sponge width (rate + capacity) gnark-crypto's BN254
// Poseidon2 instantiation uses for two-to-one compression: two rate
// elements (the pair being hashed) plus one capacity element.
const poseidonWidth = 3

// hashPair is the StagingTree's node hash: Poseidon2 over BN254, the same
// permutation the on-chain program's verifier uses (SPEC_FULL.md §4.2 —
// "Hashing discipline"). Both inputs must already be valid field elements;
// a 32-byte digest that does not reduce to one is a caller bug (corrupted
// account data or an adversarial response), never a reachable state for a
// tree this forester itself built.
func hashPair(left, right treetypes.Digest) (treetypes.Digest, error) {
	var l, r fr.Element
	if _, err := l.SetBytesCanonical(left[:]); err != nil {
		return treetypes.Digest{}, fmt.Errorf("staging: left operand is not a valid BN254 field element: %w", err)
	}
	if _, err := r.SetBytesCanonical(right[:]); err != nil {
		return treetypes.Digest{}, fmt.Errorf("staging: right operand is not a valid BN254 field element: %w", err)
	}

	perm := poseidon2.NewPoseidon2()
	state := [poseidonWidth]fr.Element{l, r, fr.NewElement(0)}
	if err := perm.Permutation(state[:]); err != nil {
		return treetypes.Digest{}, fmt.Errorf("staging: poseidon2 permutation: %w", err)
	}

	out := state[0].Bytes()
	return treetypes.Digest(out), nil
}

// HashPair exposes the tree's node hash to callers outside this package
// that need to derive proof material without a StagingTree instance: the
// coordinator's zero-subtree ladder (SPEC_FULL.md §4.1 NEW) and the
// preparation package's State.
func HashPair(left, right treetypes.Digest) (treetypes.Digest, error) {
	return hashPair(left, right)
}

// hashLeaf hashes a single leaf value, paired with the zero digest, into a
// field element-sized digest. The tree's apply path does not call it:
// appended leaves are stored as given.
func hashLeaf(leaf treetypes.Digest) (treetypes.Digest, error) {
	return hashPair(leaf, treetypes.Digest{})
}
