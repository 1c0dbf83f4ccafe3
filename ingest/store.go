/*
store.go - Persistence interfaces for uploads and statement rows

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  needs exactly two things from storage: a digest lookup scoped to
  (agent, period) for dedup, and a transactional primitive that makes the
  activation flip plus the row inserts a single atomic unit.

UPLOAD SEMANTICS:
  Uploads are append-and-deactivate. There is no delete: superseded
  uploads stay in the table with is_active=false so the history of a
  scope remains auditable.

ENFORCEMENT BACKSTOPS:
  Implementations are expected to back the engine's pre-checks with
  constraints:
  - a uniqueness constraint on the statement digest column (dedup
    backstop: InsertStatementRows skips constraint hits and reports how
    many rows actually landed)
  - at-most-one-active-per-scope, either via the scope transaction or a
    partial unique index

IMPLEMENTATIONS:
  - store/sqlite: production store
  - ingest/store: in-memory, for tests

SEE ALSO:
  - coordinator.go: activation flip over UploadStore
  - pipeline.go: the only caller that composes all of this
*/
package ingest

import "context"

// =============================================================================
// UPLOAD STORE
// =============================================================================

// UploadFilter narrows ListUploads. Zero-valued fields match everything.
type UploadFilter struct {
	Agent      AgentCode
	Period     PeriodKey
	Doc        DocType
	ActiveOnly bool
	Limit      int
}

// UploadStore persists ingestion events.
type UploadStore interface {
	// InsertUpload persists a new upload and returns it with its assigned
	// ID. The caller controls IsActive; InsertUpload never touches other
	// rows.
	InsertUpload(ctx context.Context, up Upload) (Upload, error)

	// DeactivateScope clears is_active on every upload in the scope and
	// returns how many rows were flipped.
	DeactivateScope(ctx context.Context, scope Scope) (int, error)

	// ActiveUpload returns the single active upload for the scope, or
	// ErrUploadNotFound if the scope has none.
	ActiveUpload(ctx context.Context, scope Scope) (Upload, error)

	// ListUploads returns uploads matching the filter, newest first.
	ListUploads(ctx context.Context, f UploadFilter) ([]Upload, error)
}

// =============================================================================
// ROW STORE
// =============================================================================

// RowStore persists document rows under an upload.
type RowStore interface {
	// DigestsForPeriod returns the identity digests already persisted for
	// an agent's statement rows in a period. This feeds the dedup
	// pre-check; the digest uniqueness constraint remains the backstop.
	DigestsForPeriod(ctx context.Context, agent AgentCode, period PeriodKey) (DigestSet, error)

	// InsertStatementRows persists rows with their digests (paired
	// index-for-index) and returns how many actually inserted. Rows whose
	// digest already exists with identical content are skipped, not
	// errors; a digest held by different content returns a
	// DigestCollisionError.
	InsertStatementRows(ctx context.Context, uploadID UploadID, period PeriodKey, rows []StatementRecord, digests []IdentityDigest) (int, error)

	InsertScheduleRows(ctx context.Context, uploadID UploadID, period PeriodKey, rows []ScheduleRow) (int, error)
	InsertTerminatedRows(ctx context.Context, uploadID UploadID, period PeriodKey, rows []TerminatedRow) (int, error)
}

// Store is the full persistence surface the pipeline works against.
type Store interface {
	UploadStore
	RowStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore adds the atomicity primitive the Coordinator needs.
type TxStore interface {
	Store

	// WithScopeTx executes fn atomically with respect to other ingestions
	// into the same scope. If fn returns an error nothing is persisted.
	// If the store cannot serialize against a concurrent same-scope
	// ingestion it returns an error wrapping ErrConcurrentScopeConflict
	// and applies nothing.
	WithScopeTx(ctx context.Context, scope Scope, fn func(Store) error) error
}
