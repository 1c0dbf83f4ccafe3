/*
coordinator.go - Active-version state machine per upload scope

PURPOSE:
  Guarantees that every (agent, period, doc type) scope has at most one
  active upload. On each new ingestion the coordinator deactivates all
  prior uploads in the scope and inserts the new one active, as one unit.

STATE MACHINE:
  {no upload} -> {one active upload} -> {one active upload} -> ...

  The only transition is supersession: deactivate-all, insert-active.
  There is no delete transition; prior uploads stay in storage inactive.

ATOMICITY:
  The deactivate-then-insert pair is a read-modify-write and is NOT safe
  under interleaving. Activate must run inside the store's scope
  transaction (TxStore.WithScopeTx); two uploads racing into one scope
  must end with exactly one of them active, or one of them aborted with
  ErrConcurrentScopeConflict - never two active, never zero.
*/
package ingest

import (
	"context"
	"fmt"
)

// Coordinator flips upload activation within a scope.
type Coordinator struct {
	Uploads UploadStore
}

// Activate supersedes every prior upload in up's scope and inserts up as
// the scope's single active upload. Call it with the transaction-scoped
// store handed out by TxStore.WithScopeTx.
func (c Coordinator) Activate(ctx context.Context, up Upload) (Upload, error) {
	if !up.DocType.Valid() {
		return Upload{}, fmt.Errorf("activate upload: %w: %q", ErrInvalidDocType, up.DocType)
	}

	if _, err := c.Uploads.DeactivateScope(ctx, up.Scope()); err != nil {
		return Upload{}, fmt.Errorf("deactivate scope: %w", err)
	}

	up.IsActive = true
	inserted, err := c.Uploads.InsertUpload(ctx, up)
	if err != nil {
		return Upload{}, fmt.Errorf("insert upload: %w", err)
	}
	return inserted, nil
}
