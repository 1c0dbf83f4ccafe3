/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ingest.TxStore using SQLite. In production the same patterns
  apply to MySQL/PostgreSQL - only minor SQL dialect differences.

ENFORCEMENT BACKSTOPS:
  The engine's invariants are enforced twice, on purpose:
  - unique_id_hash carries a UNIQUE constraint, so a duplicate statement
    row can never land even if the dedup pre-check raced
  - ux_uploads_active_scope is a partial unique index over
    (agent_code, month_year, doc_type) WHERE is_active=1, so two active
    uploads in one scope are impossible even outside the coordinator

KEY TABLES:
  uploads:          one row per ingestion event, never deleted
  statement_rows:   commission statement lines, digest-deduplicated
  schedule_rows:    per-agent schedule totals
  terminated_rows:  terminated-policy listings

CONCURRENCY:
  WAL mode plus immediate transactions. A scope transaction that cannot
  acquire the write lock surfaces as ErrConcurrentScopeConflict, which
  callers retry with backoff; nothing partial is ever visible.

USAGE:
  store, err := sqlite.New("./data/commissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  ingestor := ingest.NewIngestor(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ingest/store.go: interface definitions
  - ingest/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/ingest"
)

// Store implements ingest.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

var _ ingest.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The sqlite driver serializes writes; more connections just produce
	// spurious SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Uploads (append-and-deactivate; no DELETE path exists)
	CREATE TABLE IF NOT EXISTS uploads (
		upload_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_code  TEXT NOT NULL,
		agent_name  TEXT,
		doc_type    TEXT NOT NULL CHECK (doc_type IN ('STATEMENT','SCHEDULE','TERMINATED')),
		file_name   TEXT,
		month_year  TEXT NOT NULL CHECK (month_year GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]'),
		is_active   INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_scope
		ON uploads(agent_code, month_year, doc_type);

	-- CRITICAL: at most one active upload per (agent, period, doc type).
	-- The coordinator maintains this; the index makes it impossible to
	-- violate even by hand.
	CREATE UNIQUE INDEX IF NOT EXISTS ux_uploads_active_scope
		ON uploads(agent_code, month_year, doc_type)
		WHERE is_active = 1;

	-- Statement rows (digest-deduplicated)
	CREATE TABLE IF NOT EXISTS statement_rows (
		statement_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id      INTEGER NOT NULL REFERENCES uploads(upload_id),
		agent_code     TEXT,
		policy_no      TEXT,
		holder         TEXT,
		policy_type    TEXT,
		pay_date       TEXT,
		receipt_no     TEXT,
		premium        TEXT,
		com_rate       TEXT,
		com_amt        TEXT,
		month_year     TEXT NOT NULL CHECK (month_year GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]'),
		unique_id_hash TEXT NOT NULL UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_statement_agent_month
		ON statement_rows(agent_code, month_year, policy_no);
	CREATE INDEX IF NOT EXISTS idx_statement_upload
		ON statement_rows(upload_id);

	-- Schedule rows
	CREATE TABLE IF NOT EXISTS schedule_rows (
		schedule_id      INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id        INTEGER NOT NULL REFERENCES uploads(upload_id),
		agent_code       TEXT,
		agent_name       TEXT,
		batch_code       TEXT,
		total_premiums   TEXT,
		income           TEXT,
		total_deductions TEXT,
		net_commission   TEXT,
		month_year       TEXT NOT NULL CHECK (month_year GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]')
	);

	CREATE INDEX IF NOT EXISTS idx_schedule_upload
		ON schedule_rows(upload_id);

	-- Terminated rows
	CREATE TABLE IF NOT EXISTS terminated_rows (
		terminated_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id        INTEGER NOT NULL REFERENCES uploads(upload_id),
		agent_code       TEXT,
		policy_no        TEXT,
		holder           TEXT,
		policy_type      TEXT,
		pay_date         TEXT,
		receipt_no       TEXT,
		premium          TEXT,
		com_rate         TEXT,
		com_amt          TEXT,
		status           TEXT,
		reason           TEXT,
		termination_date TEXT,
		month_year       TEXT NOT NULL CHECK (month_year GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]')
	);

	CREATE INDEX IF NOT EXISTS idx_terminated_upload
		ON terminated_rows(upload_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERY TARGET - shared by *sql.DB and *sql.Tx paths
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// UPLOAD STORE
// =============================================================================

func (s *Store) InsertUpload(ctx context.Context, up ingest.Upload) (ingest.Upload, error) {
	return insertUpload(ctx, s.db, up)
}

func insertUpload(ctx context.Context, q dbtx, up ingest.Upload) (ingest.Upload, error) {
	active := 0
	if up.IsActive {
		active = 1
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO uploads (agent_code, agent_name, doc_type, file_name, month_year, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(up.AgentCode), up.AgentName, string(up.DocType), up.FileName,
		string(up.Period), active, up.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("insert upload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("insert upload id: %w", err)
	}
	up.ID = ingest.UploadID(id)
	return up, nil
}

func (s *Store) DeactivateScope(ctx context.Context, scope ingest.Scope) (int, error) {
	return deactivateScope(ctx, s.db, scope)
}

func deactivateScope(ctx context.Context, q dbtx, scope ingest.Scope) (int, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE uploads SET is_active = 0
		WHERE agent_code = ? AND month_year = ? AND doc_type = ? AND is_active = 1`,
		string(scope.Agent), string(scope.Period), string(scope.Doc))
	if err != nil {
		return 0, fmt.Errorf("deactivate scope: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate scope count: %w", err)
	}
	return int(n), nil
}

const uploadColumns = `upload_id, agent_code, agent_name, doc_type, file_name, month_year, is_active, created_at`

func (s *Store) ActiveUpload(ctx context.Context, scope ingest.Scope) (ingest.Upload, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+uploadColumns+` FROM uploads
		WHERE agent_code = ? AND month_year = ? AND doc_type = ? AND is_active = 1`,
		string(scope.Agent), string(scope.Period), string(scope.Doc))

	up, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.Upload{}, ingest.ErrUploadNotFound
	}
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("active upload: %w", err)
	}
	return up, nil
}

func (s *Store) ListUploads(ctx context.Context, f ingest.UploadFilter) ([]ingest.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads`
	var conds []string
	var args []any
	if f.Agent != "" {
		conds = append(conds, "agent_code = ?")
		args = append(args, string(f.Agent))
	}
	if f.Period != "" {
		conds = append(conds, "month_year = ?")
		args = append(args, string(f.Period))
	}
	if f.Doc != "" {
		conds = append(conds, "doc_type = ?")
		args = append(args, string(f.Doc))
	}
	if f.ActiveOnly {
		conds = append(conds, "is_active = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY upload_id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var result []ingest.Upload
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("list uploads scan: %w", err)
		}
		result = append(result, up)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(sc scanner) (ingest.Upload, error) {
	var (
		up        ingest.Upload
		agent     string
		agentName sql.NullString
		docType   string
		fileName  sql.NullString
		period    string
		active    int
		createdAt string
	)
	if err := sc.Scan(&up.ID, &agent, &agentName, &docType, &fileName, &period, &active, &createdAt); err != nil {
		return ingest.Upload{}, err
	}
	up.AgentCode = ingest.AgentCode(agent)
	up.AgentName = agentName.String
	up.DocType = ingest.DocType(docType)
	up.FileName = fileName.String
	up.Period = ingest.PeriodKey(period)
	up.IsActive = active == 1
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		up.CreatedAt = t
	}
	return up, nil
}

// =============================================================================
// ROW STORE
// =============================================================================

func (s *Store) DigestsForPeriod(ctx context.Context, agent ingest.AgentCode, period ingest.PeriodKey) (ingest.DigestSet, error) {
	return digestsForPeriod(ctx, s.db, agent, period)
}

func digestsForPeriod(ctx context.Context, q dbtx, agent ingest.AgentCode, period ingest.PeriodKey) (ingest.DigestSet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT unique_id_hash FROM statement_rows
		WHERE agent_code = ? AND month_year = ?`,
		string(agent), string(period))
	if err != nil {
		return nil, fmt.Errorf("digests for period: %w", err)
	}
	defer rows.Close()

	set := make(ingest.DigestSet)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("digests for period scan: %w", err)
		}
		set.Add(ingest.IdentityDigest(d))
	}
	return set, rows.Err()
}

func (s *Store) InsertStatementRows(ctx context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.StatementRecord, digests []ingest.IdentityDigest) (int, error) {
	return insertStatementRows(ctx, s.db, uploadID, period, rows, digests)
}

func insertStatementRows(ctx context.Context, q dbtx, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.StatementRecord, digests []ingest.IdentityDigest) (int, error) {
	inserted := 0
	for i, r := range rows {
		d := digests[i]
		_, err := q.ExecContext(ctx, `
			INSERT INTO statement_rows
				(upload_id, agent_code, policy_no, holder, policy_type, pay_date,
				 receipt_no, premium, com_rate, com_amt, month_year, unique_id_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(uploadID), string(r.AgentCode), r.PolicyNo, r.Holder, r.PolicyType,
			dateOrNull(r.PayDate), r.ReceiptNo,
			r.Premium.String(), r.ComRate.String(), r.ComAmt.String(),
			string(period), string(d))
		if err != nil {
			if isUniqueViolation(err) {
				// The digest landed between our pre-check and this insert.
				// Same content is a duplicate; different content means the
				// hashing invariant is broken and must escalate.
				if verr := verifyStoredDigest(ctx, q, d, r, period); verr != nil {
					return inserted, verr
				}
				continue
			}
			return inserted, fmt.Errorf("insert statement row: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// verifyStoredDigest compares the incoming row against the persisted row
// already holding digest d. Identical identity fields mean a legitimate
// duplicate; anything else is a collision - a hashing defect that must
// escalate, never a skip.
func verifyStoredDigest(ctx context.Context, q dbtx, d ingest.IdentityDigest, incoming ingest.StatementRecord, incomingPeriod ingest.PeriodKey) error {
	var (
		agent, policyNo, receiptNo sql.NullString
		payDate                    sql.NullString
		premium, comAmt            sql.NullString
		period                     string
	)
	err := q.QueryRowContext(ctx, `
		SELECT agent_code, policy_no, pay_date, receipt_no, premium, com_amt, month_year
		FROM statement_rows WHERE unique_id_hash = ?`,
		string(d)).Scan(&agent, &policyNo, &payDate, &receiptNo, &premium, &comAmt, &period)
	if err != nil {
		return fmt.Errorf("verify stored digest: %w", err)
	}

	stored := ingest.StatementRecord{
		AgentCode: ingest.AgentCode(agent.String),
		PolicyNo:  policyNo.String,
		ReceiptNo: receiptNo.String,
		Premium:   parseDecimal(premium.String),
		ComAmt:    parseDecimal(comAmt.String),
	}
	if payDate.Valid && payDate.String != "" {
		if t, err := time.Parse(time.DateOnly, payDate.String); err == nil {
			stored.PayDate = t
		}
	}
	if !ingest.SameIdentity(stored, ingest.PeriodKey(period), incoming, incomingPeriod) {
		return &ingest.DigestCollisionError{Digest: d}
	}
	return nil
}

func (s *Store) InsertScheduleRows(ctx context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.ScheduleRow) (int, error) {
	return insertScheduleRows(ctx, s.db, uploadID, period, rows)
}

func insertScheduleRows(ctx context.Context, q dbtx, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.ScheduleRow) (int, error) {
	for _, r := range rows {
		_, err := q.ExecContext(ctx, `
			INSERT INTO schedule_rows
				(upload_id, agent_code, agent_name, batch_code, total_premiums,
				 income, total_deductions, net_commission, month_year)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(uploadID), string(r.AgentCode), r.AgentName, r.BatchCode,
			r.TotalPremiums.String(), r.Income.String(), r.TotalDeductions.String(),
			r.NetCommission.String(), string(period))
		if err != nil {
			return 0, fmt.Errorf("insert schedule row: %w", err)
		}
	}
	return len(rows), nil
}

func (s *Store) InsertTerminatedRows(ctx context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.TerminatedRow) (int, error) {
	return insertTerminatedRows(ctx, s.db, uploadID, period, rows)
}

func insertTerminatedRows(ctx context.Context, q dbtx, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.TerminatedRow) (int, error) {
	for _, r := range rows {
		_, err := q.ExecContext(ctx, `
			INSERT INTO terminated_rows
				(upload_id, agent_code, policy_no, holder, policy_type, pay_date,
				 receipt_no, premium, com_rate, com_amt, status, reason,
				 termination_date, month_year)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(uploadID), string(r.AgentCode), r.PolicyNo, r.Holder, r.PolicyType,
			dateOrNull(r.PayDate), r.ReceiptNo,
			r.Premium.String(), r.ComRate.String(), r.ComAmt.String(),
			r.Status, r.Reason, dateOrNull(r.TerminationDate), string(period))
		if err != nil {
			return 0, fmt.Errorf("insert terminated row: %w", err)
		}
	}
	return len(rows), nil
}

// =============================================================================
// SCOPE TRANSACTIONS
// =============================================================================

// WithScopeTx runs fn inside an immediate transaction. SQLite's single
// writer serializes same-scope (and all other) ingestions; a write-lock
// timeout surfaces as a retryable scope conflict.
func (s *Store) WithScopeTx(ctx context.Context, scope ingest.Scope, fn func(ingest.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return &ingest.ScopeConflictError{Scope: scope}
		}
		return fmt.Errorf("begin scope tx: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		tx.Rollback()
		if isBusy(err) {
			return &ingest.ScopeConflictError{Scope: scope}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return &ingest.ScopeConflictError{Scope: scope}
		}
		return fmt.Errorf("commit scope tx: %w", err)
	}
	return nil
}

// txStore is the transaction-scoped view handed to WithScopeTx callbacks.
type txStore struct {
	tx *sql.Tx
}

var _ ingest.Store = (*txStore)(nil)

func (t *txStore) InsertUpload(ctx context.Context, up ingest.Upload) (ingest.Upload, error) {
	return insertUpload(ctx, t.tx, up)
}

func (t *txStore) DeactivateScope(ctx context.Context, scope ingest.Scope) (int, error) {
	return deactivateScope(ctx, t.tx, scope)
}

func (t *txStore) ActiveUpload(ctx context.Context, scope ingest.Scope) (ingest.Upload, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+uploadColumns+` FROM uploads
		WHERE agent_code = ? AND month_year = ? AND doc_type = ? AND is_active = 1`,
		string(scope.Agent), string(scope.Period), string(scope.Doc))
	up, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.Upload{}, ingest.ErrUploadNotFound
	}
	return up, err
}

func (t *txStore) ListUploads(ctx context.Context, f ingest.UploadFilter) ([]ingest.Upload, error) {
	return nil, fmt.Errorf("list uploads inside a scope transaction is not supported")
}

func (t *txStore) DigestsForPeriod(ctx context.Context, agent ingest.AgentCode, period ingest.PeriodKey) (ingest.DigestSet, error) {
	return digestsForPeriod(ctx, t.tx, agent, period)
}

func (t *txStore) InsertStatementRows(ctx context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.StatementRecord, digests []ingest.IdentityDigest) (int, error) {
	return insertStatementRows(ctx, t.tx, uploadID, period, rows, digests)
}

func (t *txStore) InsertScheduleRows(ctx context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.ScheduleRow) (int, error) {
	return insertScheduleRows(ctx, t.tx, uploadID, period, rows)
}

func (t *txStore) InsertTerminatedRows(ctx context.Context, uploadID ingest.UploadID, period ingest.PeriodKey, rows []ingest.TerminatedRow) (int, error) {
	return insertTerminatedRows(ctx, t.tx, uploadID, period, rows)
}

// =============================================================================
// HELPERS
// =============================================================================

func dateOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.DateOnly)
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		se.Code == sqlite3.ErrConstraint &&
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}
