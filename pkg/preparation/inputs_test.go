package preparation

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// TestCircuitInputRoundTrip checks that AppendInputs and NullifyInputs —
// what proverclient marshals into the prover service's request body —
// survive a JSON marshal/unmarshal cycle unchanged, the same encoding
// proverclient.circuitInputsJSON relies on.
func TestCircuitInputRoundTrip(t *testing.T) {
	wantAppend := AppendInputs{
		OldRoot:    digest(1),
		NewRoot:    digest(2),
		StartIndex: 7,
		BatchSize:  3,
		HashChain:  digest(3),
		Leaves:     []treetypes.Digest{digest(4), digest(5), digest(6)},
	}
	data, err := json.Marshal(wantAppend)
	if err != nil {
		t.Fatalf("marshal AppendInputs: %v", err)
	}
	var gotAppend AppendInputs
	if err := json.Unmarshal(data, &gotAppend); err != nil {
		t.Fatalf("unmarshal AppendInputs: %v", err)
	}
	if !reflect.DeepEqual(wantAppend, gotAppend) {
		t.Fatalf("AppendInputs round trip mismatch: got %+v, want %+v", gotAppend, wantAppend)
	}

	nullify := NullifyInputs{
		OldRoot:     digest(10),
		NewRoot:     digest(11),
		PathIndices: []uint64{0, 1, 2},
		OldLeaves:   []treetypes.Digest{digest(12), digest(13)},
		TxHashes:    []treetypes.Digest{digest(14), digest(15)},
		HashChain:   digest(16),
	}
	data, err = json.Marshal(nullify)
	if err != nil {
		t.Fatalf("marshal NullifyInputs: %v", err)
	}
	var gotNullify NullifyInputs
	if err := json.Unmarshal(data, &gotNullify); err != nil {
		t.Fatalf("unmarshal NullifyInputs: %v", err)
	}
	if !reflect.DeepEqual(nullify, gotNullify) {
		t.Fatalf("NullifyInputs round trip mismatch: got %+v, want %+v", gotNullify, nullify)
	}
}
