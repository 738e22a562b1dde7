package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/lightprotocol/forester/pkg/foresterrors"
	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// fakeSubmitter records every group it is handed, in call order.
type fakeSubmitter struct {
	groups [][]preparation.PreparedBatch
}

func (s *fakeSubmitter) SubmitBatch(_ context.Context, group []preparation.PreparedBatch) error {
	cp := make([]preparation.PreparedBatch, len(group))
	copy(cp, group)
	s.groups = append(s.groups, cp)
	return nil
}

func digestAt(n int) treetypes.Digest {
	var d treetypes.Digest
	d[0] = byte(n)
	d[1] = byte(n >> 8)
	return d
}

// appendBatchAt builds a single-leaf append PreparedBatch whose root chain
// links digestAt(i) -> digestAt(i+1), so consecutive entries in submitted
// order can be checked against each other regardless of arrival order.
func appendBatchAt(i int) preparation.PreparedBatch {
	return preparation.PreparedBatch{
		Kind: preparation.KindAppend,
		Append: &preparation.AppendInputs{
			OldRoot: digestAt(i),
			NewRoot: digestAt(i + 1),
			Leaves:  []treetypes.Digest{digestAt(i)},
		},
	}
}

func sendOutOfOrder(chanB chan indexedResult, order []int) {
	for _, i := range order {
		chanB <- indexedResult{index: i, batch: appendBatchAt(i)}
	}
	close(chanB)
}

func TestSubmitOrdering(t *testing.T) {
	const total = 5
	pattern := make([]preparation.PatternEntry, total)
	chanB := make(chan indexedResult, total)
	go sendOutOfOrder(chanB, []int{4, 2, 0, 3, 1})

	submitter := &fakeSubmitter{}
	finalRoot, itemsProcessed, err := runSubmit(context.Background(), chanB, pattern, submitter, nil)
	if err != nil {
		t.Fatalf("runSubmit: %v", err)
	}
	if itemsProcessed != total {
		t.Fatalf("itemsProcessed = %d, want %d", itemsProcessed, total)
	}
	if finalRoot != digestAt(total) {
		t.Fatalf("finalRoot = %x, want %x", finalRoot, digestAt(total))
	}

	all := make([]preparation.PreparedBatch, 0, total)
	for _, g := range submitter.groups {
		all = append(all, g...)
	}
	if len(all) != total {
		t.Fatalf("submitted %d entries, want %d", len(all), total)
	}
	for i, b := range all {
		if b.Append.OldRoot != digestAt(i) {
			t.Fatalf("entry %d: OldRoot = %x, want %x (submission order must match pattern order)", i, b.Append.OldRoot, digestAt(i))
		}
	}
}

func TestGroupSizeAtMostFour(t *testing.T) {
	const total = 9
	pattern := make([]preparation.PatternEntry, total)
	chanB := make(chan indexedResult, total)
	order := []int{8, 0, 7, 1, 6, 2, 5, 3, 4}
	go sendOutOfOrder(chanB, order)

	submitter := &fakeSubmitter{}
	if _, _, err := runSubmit(context.Background(), chanB, pattern, submitter, nil); err != nil {
		t.Fatalf("runSubmit: %v", err)
	}

	wantSizes := []int{4, 4, 1}
	if len(submitter.groups) != len(wantSizes) {
		t.Fatalf("len(groups) = %d, want %d", len(submitter.groups), len(wantSizes))
	}
	for i, g := range submitter.groups {
		if len(g) > GroupSize {
			t.Fatalf("group %d has %d entries, want at most %d", i, len(g), GroupSize)
		}
		if len(g) != wantSizes[i] {
			t.Fatalf("group %d size = %d, want %d", i, len(g), wantSizes[i])
		}
	}
}

func TestConstraintErrorSurfacesAsResyncRequired(t *testing.T) {
	pattern := make([]preparation.PatternEntry, 2)
	chanB := make(chan indexedResult, 2)

	constraintErr := &foresterrors.ConstraintError{BatchIndex: treetypes.BatchIndexOne, Details: "constraint #3 is not satisfied"}
	chanB <- indexedResult{index: 0, batch: appendBatchAt(0)}
	chanB <- indexedResult{index: 1, err: constraintErr}
	close(chanB)

	submitter := &fakeSubmitter{}
	_, _, err := runSubmit(context.Background(), chanB, pattern, submitter, nil)
	if err == nil {
		t.Fatal("runSubmit should surface the constraint error")
	}

	var ce *foresterrors.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want a *foresterrors.ConstraintError", err)
	}
	if ce.Class() != foresterrors.ClassRetryResync {
		t.Fatalf("Class() = %v, want ClassRetryResync so the caller knows to invalidate the staging cache before retrying", ce.Class())
	}

	if len(submitter.groups) != 0 {
		t.Fatalf("submitter should not have been called before the constraint error surfaced, got %d groups", len(submitter.groups))
	}
}
