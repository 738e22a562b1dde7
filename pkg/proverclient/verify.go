package proverclient

import (
	"bytes"
	"fmt"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// LocalVerifier optionally re-checks a proof returned by the prover
// service against a verifying key loaded at startup, before Stage 2
// hands it to Stage 3 — an optimization layered on top of (never a
// substitute for) the on-chain program's own verification, per
// SPEC_FULL.md §4.5 (NEW) / glossary "Local verify".
type LocalVerifier struct {
	vk groth16.VerifyingKey
}

// LoadVerifyingKey reads a serialized Groth16 verifying key from path.
func LoadVerifyingKey(path string) (*LocalVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("proverclient: read verifying key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("proverclient: decode verifying key: %w", err)
	}
	return &LocalVerifier{vk: vk}, nil
}

// Verify checks proof against the loaded verifying key and the public
// inputs a batch's circuit exposes (old_root, new_root, hash_chain, in
// that fixed order — the same order the on-chain verifier expects).
// Returning an error here is always treated as a proof-service failure
// by the caller (retryable, no resync) since a wrong local verification
// result never implies the staging tree diverged — only the on-chain
// verifier's rejection does that.
func (v *LocalVerifier) Verify(proof Proof, publicInputs []treetypes.Digest) (bool, error) {
	gProof := groth16.NewProof(ecc.BN254)
	if _, err := gProof.ReadFrom(bytes.NewReader(encodeProof(proof))); err != nil {
		return false, fmt.Errorf("proverclient: decode proof for local verify: %w", err)
	}

	witness, err := publicWitness(publicInputs)
	if err != nil {
		return false, err
	}

	if err := groth16.Verify(gProof, v.vk, witness); err != nil {
		return false, nil
	}
	return true, nil
}

// encodeProof concatenates the compressed a/b/c components into the
// wire layout groth16.Proof.ReadFrom expects for BN254.
func encodeProof(p Proof) []byte {
	out := make([]byte, 0, len(p.A)+len(p.B)+len(p.C))
	out = append(out, p.A[:]...)
	out = append(out, p.B[:]...)
	out = append(out, p.C[:]...)
	return out
}
