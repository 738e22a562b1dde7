// Package proverclient implements Stage 2's consumed external
// interface (SPEC_FULL.md §6/§4.5): submitting circuit inputs to the
// prover service and polling for a completed Groth16 proof.
package proverclient

import (
	"context"

	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// Kind selects which prover endpoint a request targets.
type Kind uint8

const (
	KindAppend Kind = iota
	KindUpdate // nullify sub-batches hit the "update" endpoint
)

// Proof is the compressed BN254 Groth16 proof wire format from
// SPEC_FULL.md §6: {a: 64 bytes, b: 128 bytes, c: 64 bytes}.
type Proof struct {
	A [64]byte
	B [128]byte
	C [64]byte
}

// Client is the interface the pipeline's Prove stage depends on; the
// Coordinator never imports HTTPClient directly.
type Client interface {
	SubmitAsync(ctx context.Context, kind Kind, batch preparation.PreparedBatch) (jobID string, err error)
	PollCompletion(ctx context.Context, jobID string) (Proof, error)
}

// Verifier is the optional local-verification step the Prove stage runs
// against a completed proof before handing it to Stage 3 (SPEC_FULL.md
// §4.5 (NEW)). LocalVerifier is the production implementation; tests
// substitute fakes.
type Verifier interface {
	Verify(proof Proof, publicInputs []treetypes.Digest) (bool, error)
}
