package preparation

import (
	"fmt"

	"github.com/lightprotocol/forester/pkg/staging"
)

// PatternEntry names one position in the iteration's ordered pattern.
type PatternEntry struct {
	Index int
	Kind  Kind
}

// BuildPattern returns the ordered pattern `[Append; numAppend] ++
// [Nullify; numNullify]` (SPEC_FULL.md §4.4). The "interleaving" name is
// historical — current policy is concatenation, append batches always
// first, because rewriting mid-stream would require re-deriving root
// dependencies the staging tree has already chained.
func BuildPattern(numAppend, numNullify int) []PatternEntry {
	pattern := make([]PatternEntry, 0, numAppend+numNullify)
	for i := 0; i < numAppend; i++ {
		pattern = append(pattern, PatternEntry{Index: len(pattern), Kind: KindAppend})
	}
	for i := 0; i < numNullify; i++ {
		pattern = append(pattern, PatternEntry{Index: len(pattern), Kind: KindNullify})
	}
	return pattern
}

// PrepareAllBatches walks pattern in strict order, producing one
// PreparedBatch per entry and threading the staging tree through every
// call so new_root[i] == old_root[i+1] holds by construction (SPEC_FULL.md
// §4.3 ordering contract). appendProofs/nullifyProofs supply the
// per-sub-batch inclusion proofs in append-cursor / nullify-cursor order.
func (s *State) PrepareAllBatches(pattern []PatternEntry, appendProofs, nullifyProofs [][]staging.InclusionProof) ([]PreparedBatch, error) {
	batches := make([]PreparedBatch, 0, len(pattern))
	nextAppendProof, nextNullifyProof := 0, 0

	for _, entry := range pattern {
		switch entry.Kind {
		case KindAppend:
			if nextAppendProof >= len(appendProofs) {
				return nil, fmt.Errorf("preparation: pattern entry %d wants an append sub-batch but no proofs remain", entry.Index)
			}
			batch, err := s.PrepareNextAppend(appendProofs[nextAppendProof])
			if err != nil {
				return nil, err
			}
			nextAppendProof++
			batches = append(batches, batch)
		case KindNullify:
			if nextNullifyProof >= len(nullifyProofs) {
				return nil, fmt.Errorf("preparation: pattern entry %d wants a nullify sub-batch but no proofs remain", entry.Index)
			}
			batch, err := s.PrepareNextNullify(nullifyProofs[nextNullifyProof])
			if err != nil {
				return nil, err
			}
			nextNullifyProof++
			batches = append(batches, batch)
		}
	}

	return batches, nil
}
