// Package foresterrors implements the error taxonomy and retry
// classification the Coordinator's inner loop relies on: whether a
// failure should be retried transparently, requires invalidating the
// staging cache before retrying, or must be surfaced to the caller.
package foresterrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// Class describes how the coordinator's retry loop should react to an
// error.
type Class int

const (
	// ClassFatal means the error is returned to the caller; both caches
	// are invalidated first.
	ClassFatal Class = iota
	// ClassRetryNoResync means retry without touching the staging cache.
	ClassRetryNoResync
	// ClassRetryResync means retry after invalidating the local staging
	// cache so the next iteration rebuilds it from chain.
	ClassRetryResync
	// ClassRetryStale is the indexer-lag retry: no resync, and the retry
	// loop sleeps 500ms before the next attempt.
	ClassRetryStale
)

// ForesterError is the common interface every classified error
// satisfies, on top of the standard error interface.
type ForesterError interface {
	error
	Class() Class
}

// PhotonStaleError reports that the indexer's initial_root did not match
// the on-chain root — the indexer has not caught up yet.
type PhotonStaleError struct {
	Queue       string
	PhotonRoot  treetypes.Digest
	OnChainRoot treetypes.Digest
}

func (e *PhotonStaleError) Error() string {
	return fmt.Sprintf("photon stale on %s queue: indexer root %s != on-chain root %s", e.Queue, e.PhotonRoot, e.OnChainRoot)
}

func (e *PhotonStaleError) Class() Class { return ClassRetryStale }

// ConstraintError reports that a sub-batch's proof failed a circuit
// constraint — a sign the optimistic staging tree diverged from the
// chain's actual state.
type ConstraintError struct {
	BatchIndex treetypes.BatchIndex
	Details    string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation in batch %d: %s", e.BatchIndex, e.Details)
}

func (e *ConstraintError) Class() Class { return ClassRetryResync }

// constraintSubstrings are the two fragments that, both present in a
// prover error message, identify a constraint failure. Matching on
// substrings rather than a structured error code mirrors what the
// prover service actually returns: free-form diagnostic text.
var constraintSubstrings = []string{"constraint #", "is not satisfied"}

// IsConstraintFailure reports whether msg looks like a circuit
// constraint violation.
func IsConstraintFailure(msg string) bool {
	for _, frag := range constraintSubstrings {
		if !strings.Contains(msg, frag) {
			return false
		}
	}
	return true
}

// ClassifyProverError turns a raw prover error message into a
// ConstraintError when it matches the substring rule, or wraps it as a
// generic retryable proof-service failure otherwise.
func ClassifyProverError(batchIndex treetypes.BatchIndex, msg string) ForesterError {
	if IsConstraintFailure(msg) {
		return &ConstraintError{BatchIndex: batchIndex, Details: msg}
	}
	return &ProofServiceError{Message: msg}
}

// RootChangedError reports that the on-chain root moved underneath the
// coordinator — another forester's transaction (or this forester's own,
// observed late) landed first.
type RootChangedError struct {
	Phase    string
	Expected treetypes.Digest
	Actual   treetypes.Digest
}

func (e *RootChangedError) Error() string {
	return fmt.Sprintf("root changed during %s: expected %s, got %s", e.Phase, e.Expected, e.Actual)
}

func (e *RootChangedError) Class() Class { return ClassRetryResync }

// ProofServiceError wraps a transient proof-submission or -polling
// failure — network errors, timeouts, HTTP 5xx.
type ProofServiceError struct {
	Message string
	Cause   error
}

func (e *ProofServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("proof service: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("proof service: %s", e.Message)
}

func (e *ProofServiceError) Unwrap() error { return e.Cause }

func (e *ProofServiceError) Class() Class { return ClassRetryNoResync }

// HashChainMismatchError reports that recomputing a sub-batch's
// hash-chain commitment from the indexer's leaves did not match the
// value the indexer attached to it — a sign the indexer's response for
// this sub-batch cannot be trusted as-is.
type HashChainMismatchError struct {
	Queue      string
	BatchIndex int
}

func (e *HashChainMismatchError) Error() string {
	return fmt.Sprintf("hash chain mismatch on %s sub-batch %d", e.Queue, e.BatchIndex)
}

func (e *HashChainMismatchError) Class() Class { return ClassRetryResync }

// NoRootError reports an empty root history ring buffer on a tree
// account — a malformed or uninitialized tree.
type NoRootError struct {
	Tree treetypes.TreeID
}

func (e *NoRootError) Error() string {
	return fmt.Sprintf("no root in history for tree %s", e.Tree)
}

func (e *NoRootError) Class() Class { return ClassFatal }

// ParseError reports a failure decoding on-chain account data —
// discriminator mismatch or truncated layout.
type ParseError struct {
	Account string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s account: %v", e.Account, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Class() Class { return ClassFatal }

// UnsubmittedBatchesError reports that the pipeline's submit stage ended
// with entries still buffered — an internal invariant violation, since
// stage 3 is required to flush every residual group on channel close.
type UnsubmittedBatchesError struct {
	Remaining int
}

func (e *UnsubmittedBatchesError) Error() string {
	return fmt.Sprintf("pipeline ended with %d unsubmitted batches", e.Remaining)
}

func (e *UnsubmittedBatchesError) Class() Class { return ClassFatal }

// ClassOf extracts the Class of err, defaulting to ClassFatal for any
// error that does not implement ForesterError — an unclassified error is
// treated as non-retryable so it surfaces rather than loops silently.
func ClassOf(err error) Class {
	var fe ForesterError
	if errors.As(err, &fe) {
		return fe.Class()
	}
	return ClassFatal
}

// IsRetryable reports whether the retry loop should attempt err again at
// all (as opposed to surfacing it immediately).
func IsRetryable(err error) bool {
	return ClassOf(err) != ClassFatal
}

// RequiresResync reports whether a retry of err must first invalidate
// the local staging cache. PhotonStale is retryable but never implies
// resync — the indexer catching up does not mean the staging tree
// diverged from chain.
func RequiresResync(err error) bool {
	return ClassOf(err) == ClassRetryResync
}

// IsStale reports whether the retry loop should sleep before retrying
// err (the PhotonStale special case).
func IsStale(err error) bool {
	return ClassOf(err) == ClassRetryStale
}
