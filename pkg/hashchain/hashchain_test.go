package hashchain

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func leaf(b byte) []byte {
	l := make([]byte, 32)
	l[0] = b
	return l
}

func TestComputeMatchesManualFold(t *testing.T) {
	leaves := [][]byte{leaf(1), leaf(2), leaf(3)}

	links, final, err := Compute(leaves)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("len(links) = %d, want 3", len(links))
	}

	h0 := sha256.Sum256(leaves[0])
	want1 := sha256.Sum256(append(append([]byte{}, h0[:]...), leaves[1]...))
	if !bytes.Equal(links[1], want1[:]) {
		t.Fatalf("links[1] mismatch")
	}
	if !bytes.Equal(final, links[2]) {
		t.Fatalf("final should equal last link")
	}
}

func TestComputeRejectsEmpty(t *testing.T) {
	if _, _, err := Compute(nil); err != ErrEmptyChain {
		t.Fatalf("err = %v, want ErrEmptyChain", err)
	}
}

func TestComputeRejectsShortLeaf(t *testing.T) {
	if _, _, err := Compute([][]byte{{1, 2, 3}}); err == nil {
		t.Fatal("expected error for short leaf")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	leaves := [][]byte{leaf(1), leaf(2), leaf(3)}
	_, final, err := Compute(leaves)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	ok, err := Verify(leaves, final)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("Verify() = false, want true")
	}

	tampered := append([]byte{}, final...)
	tampered[0] ^= 0xff
	ok, err = Verify(leaves, tampered)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("Verify() = true for tampered final, want false")
	}
}

func TestVerifyPrefixContinuesChain(t *testing.T) {
	first := [][]byte{leaf(1), leaf(2)}
	_, firstFinal, err := Compute(first)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	second := [][]byte{leaf(3)}
	all := append(append([][]byte{}, first...), second...)
	_, wantFinal, err := Compute(all)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	ok, err := VerifyPrefix(firstFinal, second, wantFinal)
	if err != nil {
		t.Fatalf("VerifyPrefix: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPrefix() = false, want true")
	}
}

func TestVerifyPrefixFromEmptyPrior(t *testing.T) {
	leaves := [][]byte{leaf(1), leaf(2)}
	_, final, err := Compute(leaves)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	ok, err := VerifyPrefix(nil, leaves, final)
	if err != nil {
		t.Fatalf("VerifyPrefix: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPrefix() = false, want true")
	}
}
