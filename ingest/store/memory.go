// Package store provides in-memory Store implementations for tests/dev.
package store

import (
	"context"
	"sync"

	"github.com/warp/commission-engine/ingest"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.Mutex
	nextID     ingest.UploadID
	uploads    []ingest.Upload
	statements map[ingest.IdentityDigest]statementRow
	schedule   []scheduleRow
	terminated []terminatedRow
}

type statementRow struct {
	UploadID ingest.UploadID
	Period   ingest.PeriodKey
	Row      ingest.StatementRecord
}

type scheduleRow struct {
	UploadID ingest.UploadID
	Period   ingest.PeriodKey
	Row      ingest.ScheduleRow
}

type terminatedRow struct {
	UploadID ingest.UploadID
	Period   ingest.PeriodKey
	Row      ingest.TerminatedRow
}

func NewMemory() *Memory {
	return &Memory{
		nextID:     1,
		statements: make(map[ingest.IdentityDigest]statementRow),
	}
}

var _ ingest.TxStore = (*Memory)(nil)

// =============================================================================
// UPLOAD STORE
// =============================================================================

func (m *Memory) InsertUpload(_ context.Context, up ingest.Upload) (ingest.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertUploadLocked(up)
}

func (m *Memory) insertUploadLocked(up ingest.Upload) (ingest.Upload, error) {
	up.ID = m.nextID
	m.nextID++
	m.uploads = append(m.uploads, up)
	return up, nil
}

func (m *Memory) DeactivateScope(_ context.Context, scope ingest.Scope) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deactivateScopeLocked(scope)
}

func (m *Memory) deactivateScopeLocked(scope ingest.Scope) (int, error) {
	n := 0
	for i := range m.uploads {
		if m.uploads[i].Scope() == scope && m.uploads[i].IsActive {
			m.uploads[i].IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *Memory) ActiveUpload(_ context.Context, scope ingest.Scope) (ingest.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.uploads) - 1; i >= 0; i-- {
		if m.uploads[i].Scope() == scope && m.uploads[i].IsActive {
			return m.uploads[i], nil
		}
	}
	return ingest.Upload{}, ingest.ErrUploadNotFound
}

func (m *Memory) ListUploads(_ context.Context, f ingest.UploadFilter) ([]ingest.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []ingest.Upload
	// Newest first: uploads are appended in insertion order.
	for i := len(m.uploads) - 1; i >= 0; i-- {
		up := m.uploads[i]
		if f.Agent != "" && up.AgentCode != f.Agent {
			continue
		}
		if f.Period != "" && up.Period != f.Period {
			continue
		}
		if f.Doc != "" && up.DocType != f.Doc {
			continue
		}
		if f.ActiveOnly && !up.IsActive {
			continue
		}
		result = append(result, up)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result, nil
}

// =============================================================================
// ROW STORE
// =============================================================================

func (m *Memory) DigestsForPeriod(_ context.Context, agent ingest.AgentCode, period ingest.PeriodKey) (ingest.DigestSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.digestsForPeriodLocked(agent, period)
}

func (m *Memory) digestsForPeriodLocked(agent ingest.AgentCode, period ingest.PeriodKey) (ingest.DigestSet, error) {
	set := make(ingest.DigestSet)
	for d, row := range m.statements {
		if row.Period == period && row.Row.AgentCode == agent {
			set.Add(d)
		}
	}
	return set, nil
}

func (m *Memory) InsertStatementRows(_ context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.StatementRecord, digests []ingest.IdentityDigest) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertStatementRowsLocked(uploadID, period, rows, digests)
}

func (m *Memory) insertStatementRowsLocked(uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.StatementRecord, digests []ingest.IdentityDigest) (int, error) {
	inserted := 0
	for i, r := range rows {
		d := digests[i]
		if held, ok := m.statements[d]; ok {
			if !ingest.SameIdentity(held.Row, held.Period, r, period) {
				return inserted, &ingest.DigestCollisionError{Digest: d}
			}
			continue // exact row already persisted: duplicate, not an error
		}
		m.statements[d] = statementRow{UploadID: uploadID, Period: period, Row: r}
		inserted++
	}
	return inserted, nil
}

func (m *Memory) InsertScheduleRows(_ context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.ScheduleRow) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertScheduleRowsLocked(uploadID, period, rows)
}

func (m *Memory) insertScheduleRowsLocked(uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.ScheduleRow) (int, error) {
	for _, r := range rows {
		m.schedule = append(m.schedule, scheduleRow{UploadID: uploadID, Period: period, Row: r})
	}
	return len(rows), nil
}

func (m *Memory) InsertTerminatedRows(_ context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.TerminatedRow) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTerminatedRowsLocked(uploadID, period, rows)
}

func (m *Memory) insertTerminatedRowsLocked(uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.TerminatedRow) (int, error) {
	for _, r := range rows {
		m.terminated = append(m.terminated, terminatedRow{UploadID: uploadID, Period: period, Row: r})
	}
	return len(rows), nil
}

// =============================================================================
// SCOPE TRANSACTIONS
// =============================================================================

// WithScopeTx serializes the whole store for the duration of fn and rolls
// back to a snapshot if fn fails. Coarse, but a faithful model of the
// atomicity contract for tests.
func (m *Memory) WithScopeTx(_ context.Context, _ ingest.Scope, fn func(ingest.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	if err := fn(&memoryTx{m: m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextID     ingest.UploadID
	uploads    []ingest.Upload
	statements map[ingest.IdentityDigest]statementRow
	schedule   []scheduleRow
	terminated []terminatedRow
}

func (m *Memory) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		nextID:     m.nextID,
		uploads:    make([]ingest.Upload, len(m.uploads)),
		statements: make(map[ingest.IdentityDigest]statementRow, len(m.statements)),
		schedule:   make([]scheduleRow, len(m.schedule)),
		terminated: make([]terminatedRow, len(m.terminated)),
	}
	copy(snap.uploads, m.uploads)
	copy(snap.schedule, m.schedule)
	copy(snap.terminated, m.terminated)
	for d, r := range m.statements {
		snap.statements[d] = r
	}
	return snap
}

func (m *Memory) restoreLocked(snap memorySnapshot) {
	m.nextID = snap.nextID
	m.uploads = snap.uploads
	m.statements = snap.statements
	m.schedule = snap.schedule
	m.terminated = snap.terminated
}

// memoryTx is the transaction-scoped view handed to WithScopeTx callbacks.
// The parent already holds the lock, so it calls the unlocked internals.
type memoryTx struct {
	m *Memory
}

var _ ingest.Store = (*memoryTx)(nil)

func (t *memoryTx) InsertUpload(_ context.Context, up ingest.Upload) (ingest.Upload, error) {
	return t.m.insertUploadLocked(up)
}

func (t *memoryTx) DeactivateScope(_ context.Context, scope ingest.Scope) (int, error) {
	return t.m.deactivateScopeLocked(scope)
}

func (t *memoryTx) ActiveUpload(_ context.Context, scope ingest.Scope) (ingest.Upload, error) {
	for i := len(t.m.uploads) - 1; i >= 0; i-- {
		if t.m.uploads[i].Scope() == scope && t.m.uploads[i].IsActive {
			return t.m.uploads[i], nil
		}
	}
	return ingest.Upload{}, ingest.ErrUploadNotFound
}

func (t *memoryTx) ListUploads(_ context.Context, f ingest.UploadFilter) ([]ingest.Upload, error) {
	// Not needed inside a scope transaction; keep it honest anyway.
	var result []ingest.Upload
	for i := len(t.m.uploads) - 1; i >= 0; i-- {
		up := t.m.uploads[i]
		if f.Agent != "" && up.AgentCode != f.Agent {
			continue
		}
		if f.Period != "" && up.Period != f.Period {
			continue
		}
		if f.Doc != "" && up.DocType != f.Doc {
			continue
		}
		if f.ActiveOnly && !up.IsActive {
			continue
		}
		result = append(result, up)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result, nil
}

func (t *memoryTx) DigestsForPeriod(_ context.Context, agent ingest.AgentCode, period ingest.PeriodKey) (ingest.DigestSet, error) {
	return t.m.digestsForPeriodLocked(agent, period)
}

func (t *memoryTx) InsertStatementRows(_ context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.StatementRecord, digests []ingest.IdentityDigest) (int, error) {
	return t.m.insertStatementRowsLocked(uploadID, period, rows, digests)
}

func (t *memoryTx) InsertScheduleRows(_ context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.ScheduleRow) (int, error) {
	return t.m.insertScheduleRowsLocked(uploadID, period, rows)
}

func (t *memoryTx) InsertTerminatedRows(_ context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.TerminatedRow) (int, error) {
	return t.m.insertTerminatedRowsLocked(uploadID, period, rows)
}
