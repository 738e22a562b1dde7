package proverclient

import (
	"fmt"
	"iter"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/witness"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// publicWitness builds a gnark witness.Witness from raw 32-byte digests,
// in the fixed order the circuit exposes them as public inputs. There is
// no secret portion: the local verifier (run in Stage 2) never has access
// to the circuit's private assignment, only the values both sides already
// agree are public.
func publicWitness(inputs []treetypes.Digest) (witness.Witness, error) {
	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("proverclient: allocate witness: %w", err)
	}

	values := func(yield func(fr.Element) bool) {
		for _, d := range inputs {
			var e fr.Element
			if _, err := e.SetBytesCanonical(d[:]); err != nil {
				return
			}
			if !yield(e) {
				return
			}
		}
	}

	if err := w.Fill(len(inputs), 0, iter.Seq[fr.Element](values)); err != nil {
		return nil, fmt.Errorf("proverclient: fill witness: %w", err)
	}
	return w, nil
}
