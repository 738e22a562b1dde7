package treetypes

import "testing"

func TestDigestHexRoundTrip(t *testing.T) {
	var d Digest
	d[0] = 0xab
	d[31] = 0xcd

	got, err := DigestFromHex(d.String())
	if err != nil {
		t.Fatalf("DigestFromHex: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %x want %x", got, d)
	}
}

func TestDigestFromHexRejectsWrongLength(t *testing.T) {
	if _, err := DigestFromHex("abcd"); err == nil {
		t.Fatal("expected error for short hex")
	}
}

func TestBatchDescriptorReadyCount(t *testing.T) {
	cases := []struct {
		name string
		b    BatchDescriptor
		want uint64
	}{
		{"inserted contributes zero", BatchDescriptor{State: BatchStateInserted, CurrentZkpBatchIndex: 5, NumInsertedZkps: 1}, 0},
		{"fill with backlog", BatchDescriptor{State: BatchStateFill, CurrentZkpBatchIndex: 5, NumInsertedZkps: 2}, 3},
		{"fully drained", BatchDescriptor{State: BatchStateFull, CurrentZkpBatchIndex: 3, NumInsertedZkps: 3}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.b.ReadyCount(); got != tc.want {
				t.Fatalf("ReadyCount() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestProcessedBatchIDString(t *testing.T) {
	id := ProcessedBatchID{BatchIndex: BatchIndexOne, ZkpBatchIndex: 4, IsAppend: true}
	want := "append/batch1/zkp4"
	if got := id.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
