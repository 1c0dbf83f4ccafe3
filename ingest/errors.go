/*
errors.go - Centralized error types for the ingestion engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the structured types carry
  enough context to report which label, row, or scope failed.

ERROR CATEGORIES:
  1. Normalization errors - the label matched no grammar (caller must fix
     the source data; never retryable)
  2. Batch errors - a row contradicts the batch's period
  3. Storage errors - scope serialization conflicts (retryable) and
     digest-collision invariant violations (never retryable, escalate)

USAGE:
    if errors.Is(err, ingest.ErrUnrecognizedPeriodLabel) {
        // reject the source file, surface the label to the operator
    }
    if ingest.IsRetryable(err) {
        // back off and re-run the ingestion
    }
*/
package ingest

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnrecognizedPeriodLabel is returned when a month label matches no
	// accepted grammar, or matches one but uses an unknown month token.
	// Not retryable: the source label needs human correction.
	ErrUnrecognizedPeriodLabel = errors.New("unrecognized period label")

	// ErrPeriodMismatch is returned when a row's own label normalizes to a
	// different month than the batch it arrived in. The whole batch is
	// rejected; a batch represents exactly one period.
	ErrPeriodMismatch = errors.New("row period does not match batch period")

	// ErrConcurrentScopeConflict is returned when the store cannot
	// serialize an activation flip against a concurrent ingestion into the
	// same scope. Retryable with backoff; the transition never partially
	// applies.
	ErrConcurrentScopeConflict = errors.New("concurrent ingestion conflict on upload scope")

	// ErrDigestCollision is returned when a persisted row with the same
	// identity digest holds different content. This means the hash inputs
	// diverged somewhere and dedup can no longer be trusted; it must be
	// escalated, never suppressed.
	ErrDigestCollision = errors.New("identity digest collision with different content")

	// ErrUploadNotFound is returned when a referenced upload doesn't exist.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrInvalidDocType is returned for document types outside the
	// enumerated set.
	ErrInvalidDocType = errors.New("invalid document type")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnrecognizedLabelError reports the offending label and, when a grammar
// matched but its month token was unknown, which grammar claimed it.
type UnrecognizedLabelError struct {
	Label string
	Rule  string
}

func (e *UnrecognizedLabelError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("unrecognized period label %q (unknown month token in %s form)", e.Label, e.Rule)
	}
	return fmt.Sprintf("unrecognized period label %q", e.Label)
}

func (e *UnrecognizedLabelError) Unwrap() error { return ErrUnrecognizedPeriodLabel }

// PeriodMismatchError reports a row whose label belongs to a different
// month than the batch.
type PeriodMismatchError struct {
	Row   int // zero-based position in the batch
	Label RawPeriodLabel
	Got   PeriodKey
	Want  PeriodKey
}

func (e *PeriodMismatchError) Error() string {
	return fmt.Sprintf("row %d: label %q normalizes to %s, batch period is %s",
		e.Row, e.Label, e.Got, e.Want)
}

func (e *PeriodMismatchError) Unwrap() error { return ErrPeriodMismatch }

// ScopeConflictError reports which scope lost a serialization race.
type ScopeConflictError struct {
	Scope Scope
}

func (e *ScopeConflictError) Error() string {
	return fmt.Sprintf("concurrent ingestion conflict on scope (%s, %s, %s)",
		e.Scope.Agent, e.Scope.Period, e.Scope.Doc)
}

func (e *ScopeConflictError) Unwrap() error { return ErrConcurrentScopeConflict }

// DigestCollisionError reports the digest whose stored content differs
// from the incoming row.
type DigestCollisionError struct {
	Digest IdentityDigest
}

func (e *DigestCollisionError) Error() string {
	return fmt.Sprintf("digest %s already persisted with different content", e.Digest)
}

func (e *DigestCollisionError) Unwrap() error { return ErrDigestCollision }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Only scope conflicts qualify; retrying a rejected label without fixing
// the source is pointless, and retrying a digest collision is dangerous.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentScopeConflict)
}

// IsClientError returns true if the error is due to invalid input data.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnrecognizedPeriodLabel) ||
		errors.Is(err, ErrPeriodMismatch) ||
		errors.Is(err, ErrInvalidDocType)
}
