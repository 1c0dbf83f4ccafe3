/*
pipeline.go - Batch ingestion orchestration

PURPOSE:
  The one place where the pure pieces (normalizer, hasher, dedup) meet
  the stateful pieces (digest lookup, activation flip). A batch is one
  upload: a document's rows plus the scope descriptor.

CONTROL FLOW:
  1. Normalize the batch label; reject the batch on failure.
  2. Normalize every row's label; any failure, or a row normalizing to a
     different month than the batch, rejects the whole batch. No partial
     period ever lands.
  3. Statement batches: fetch persisted digests for (agent, period),
     classify rows (Dedupe).
  4. Inside one scope transaction: flip activation (Coordinator) and
     insert the surviving rows. All-or-nothing; a conflict aborts with
     ErrConcurrentScopeConflict and the caller may retry.

  Dry-run stops after step 3 and persists nothing.
*/
package ingest

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// BATCH - One ingestion request
// =============================================================================

// Batch is the unit of ingestion: one document's rows plus the upload
// scope descriptor. Exactly one of the row slices should be populated,
// matching DocType.
type Batch struct {
	AgentCode AgentCode
	AgentName string
	DocType   DocType
	FileName  string
	Label     RawPeriodLabel

	Statements []StatementRecord
	Schedule   []ScheduleRow
	Terminated []TerminatedRow
}

// IngestResult summarizes one ingestion for callers and audit logs.
type IngestResult struct {
	Upload       Upload
	Period       PeriodKey
	RowsInserted int
	Duplicates   int
	DryRun       bool
}

// =============================================================================
// INGESTOR
// =============================================================================

// Ingestor runs batches against a transactional store.
type Ingestor struct {
	Store TxStore

	// Now stamps upload creation time; overridable in tests.
	Now func() time.Time
}

func NewIngestor(store TxStore) *Ingestor {
	return &Ingestor{Store: store, Now: time.Now}
}

// Ingest runs the full pipeline and persists the batch.
func (ing *Ingestor) Ingest(ctx context.Context, batch Batch) (IngestResult, error) {
	return ing.run(ctx, batch, false)
}

// DryRun classifies the batch without persisting rows or flipping
// activation. The returned RowsInserted is what Ingest would insert.
func (ing *Ingestor) DryRun(ctx context.Context, batch Batch) (IngestResult, error) {
	return ing.run(ctx, batch, true)
}

func (ing *Ingestor) run(ctx context.Context, batch Batch, dry bool) (IngestResult, error) {
	if !batch.DocType.Valid() {
		return IngestResult{}, fmt.Errorf("ingest: %w: %q", ErrInvalidDocType, batch.DocType)
	}

	period, err := NormalizePeriod(string(batch.Label))
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest batch label: %w", err)
	}
	if err := checkRowLabels(batch, period); err != nil {
		return IngestResult{}, err
	}

	var (
		accepted []StatementRecord
		digests  []IdentityDigest
		dupes    int
		rowCount int
	)
	switch batch.DocType {
	case DocStatement:
		existing, err := ing.Store.DigestsForPeriod(ctx, batch.AgentCode, period)
		if err != nil {
			return IngestResult{}, fmt.Errorf("load persisted digests: %w", err)
		}
		accepted, digests, dupes = Dedupe(batch.Statements, period, existing)
		rowCount = len(accepted)
	case DocSchedule:
		rowCount = len(batch.Schedule)
	case DocTerminated:
		rowCount = len(batch.Terminated)
	}

	result := IngestResult{
		Period:       period,
		RowsInserted: rowCount,
		Duplicates:   dupes,
		DryRun:       dry,
	}
	if dry {
		return result, nil
	}

	scope := Scope{Agent: batch.AgentCode, Period: period, Doc: batch.DocType}
	err = ing.Store.WithScopeTx(ctx, scope, func(s Store) error {
		coord := Coordinator{Uploads: s}
		up, err := coord.Activate(ctx, Upload{
			AgentCode: batch.AgentCode,
			AgentName: batch.AgentName,
			DocType:   batch.DocType,
			FileName:  batch.FileName,
			Period:    period,
			CreatedAt: ing.Now().UTC(),
		})
		if err != nil {
			return err
		}
		result.Upload = up

		switch batch.DocType {
		case DocStatement:
			inserted, err := s.InsertStatementRows(ctx, up.ID, period, accepted, digests)
			if err != nil {
				return err
			}
			// Rows that raced in since the pre-check hit the digest
			// constraint and count as duplicates, not failures.
			result.Duplicates += len(accepted) - inserted
			result.RowsInserted = inserted
		case DocSchedule:
			result.RowsInserted, err = s.InsertScheduleRows(ctx, up.ID, period, batch.Schedule)
			if err != nil {
				return err
			}
		case DocTerminated:
			result.RowsInserted, err = s.InsertTerminatedRows(ctx, up.ID, period, batch.Terminated)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	return result, nil
}

// checkRowLabels normalizes every row-level label and rejects the batch
// if any row fails, or belongs to a month other than the batch period.
// Empty row labels inherit the batch label.
func checkRowLabels(batch Batch, period PeriodKey) error {
	check := func(i int, label RawPeriodLabel) error {
		if label == "" {
			return nil
		}
		got, err := NormalizePeriod(string(label))
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if got != period {
			return &PeriodMismatchError{Row: i, Label: label, Got: got, Want: period}
		}
		return nil
	}

	switch batch.DocType {
	case DocStatement:
		for i, r := range batch.Statements {
			if err := check(i, r.Label); err != nil {
				return err
			}
		}
	case DocSchedule:
		for i, r := range batch.Schedule {
			if err := check(i, r.Label); err != nil {
				return err
			}
		}
	case DocTerminated:
		for i, r := range batch.Terminated {
			if err := check(i, r.Label); err != nil {
				return err
			}
		}
	}
	return nil
}
