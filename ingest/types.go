/*
Package ingest provides the period canonicalization and idempotent
ingestion engine for commission statements.

PURPOSE:
  Monthly statements arrive from upstream sources whose month labels are
  textually inconsistent ("COM_JUN_2025", "Jun 2025", "2025/6", ...).
  Everything downstream keys off a single canonical period, so this
  package owns the three pieces with real invariants:

  1. Label normalization: any accepted label form -> canonical "YYYY-MM",
     or a named rejection. Never best-effort guessing.
  2. Identity hashing + dedup: every statement row gets a deterministic
     content digest; re-ingesting the same logical row is a no-op.
  3. Active-version coordination: exactly one upload is authoritative per
     (agent, period, doc type) scope; re-upload supersedes, never deletes.

KEY CONCEPTS IN THIS FILE (types.go):
  - PeriodKey: canonical "YYYY-MM" month, produced only by NormalizePeriod
  - StatementRecord / ScheduleRow / TerminatedRow: typed statement lines
  - Upload: one ingestion event, scoped by (agent, period, doc type)
  - IdentityDigest: the dedup key for statement rows

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for money, never float64
  2. Immutability: uploads are deactivated, never deleted
  3. Auditability: rejected labels fail loudly, with the label attached

SEE ALSO:
  - period.go: label grammar chain
  - digest.go: identity hashing
  - pipeline.go: batch ingestion orchestration
*/
package ingest

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD KEY - Canonical "YYYY-MM" month
// =============================================================================

// PeriodKey is the canonical textual form of a reporting month: a 4-digit
// year and 2-digit month joined by '-'. It is produced only by
// NormalizePeriod; nothing else constructs one from raw input. Equality is
// string equality on the canonical form.
type PeriodKey string

// Time returns the first day of the period's month, UTC.
// Returns the zero time for a malformed key (which NormalizePeriod never
// produces).
func (p PeriodKey) Time() time.Time {
	t, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (p PeriodKey) String() string { return string(p) }

// RawPeriodLabel is an upstream month label in whatever form the source
// produced. Transient: it is normalized on ingestion and never persisted.
type RawPeriodLabel string

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgentCode string
type UploadID int64

// IdentityDigest is the uppercase-hex SHA-256 over a statement row's
// identity fields. It is the sole dedup key for statement rows.
type IdentityDigest string

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// DocType identifies which kind of document an upload carries.
type DocType string

const (
	DocStatement  DocType = "STATEMENT"
	DocSchedule   DocType = "SCHEDULE"
	DocTerminated DocType = "TERMINATED"
)

// Valid reports whether d is one of the enumerated document types.
func (d DocType) Valid() bool {
	switch d {
	case DocStatement, DocSchedule, DocTerminated:
		return true
	}
	return false
}

// =============================================================================
// STATEMENT ROWS
// =============================================================================

// StatementRecord is one line of a commission statement. The identity
// fields (see Digest) are AgentCode, PolicyNo, PayDate, Premium, ComAmt,
// ReceiptNo plus the canonical period; the rest are carried for storage
// but do not participate in dedup.
//
// A zero PayDate means "absent"; the digest substitutes a fixed sentinel.
type StatementRecord struct {
	AgentCode  AgentCode
	PolicyNo   string
	Holder     string
	PolicyType string
	PayDate    time.Time
	ReceiptNo  string
	Premium    decimal.Decimal
	ComRate    decimal.Decimal
	ComAmt     decimal.Decimal
	Label      RawPeriodLabel // row-level month label; empty means "use the batch label"
}

// ScheduleRow is one line of a commission schedule (per-agent totals).
// Schedule rows have no identity digest; they ride the upload's
// all-or-nothing persistence.
type ScheduleRow struct {
	AgentCode       AgentCode
	AgentName       string
	BatchCode       string
	TotalPremiums   decimal.Decimal
	Income          decimal.Decimal
	TotalDeductions decimal.Decimal
	NetCommission   decimal.Decimal
	Label           RawPeriodLabel
}

// TerminatedRow is one line of a terminated-policies listing.
type TerminatedRow struct {
	AgentCode       AgentCode
	PolicyNo        string
	Holder          string
	PolicyType      string
	PayDate         time.Time
	ReceiptNo       string
	Premium         decimal.Decimal
	ComRate         decimal.Decimal
	ComAmt          decimal.Decimal
	Status          string
	Reason          string
	TerminationDate time.Time
	Label           RawPeriodLabel
}

// =============================================================================
// UPLOADS - One ingestion event
// =============================================================================

// Upload records a single ingestion attempt. Uploads are append-only:
// superseded uploads are deactivated, never deleted, so the full upload
// history of a scope remains auditable.
type Upload struct {
	ID        UploadID
	AgentCode AgentCode
	AgentName string
	DocType   DocType
	FileName  string
	Period    PeriodKey
	IsActive  bool
	CreatedAt time.Time
}

// Scope is the triple that bounds "active" uniqueness: at most one upload
// per scope is active at any instant.
type Scope struct {
	Agent  AgentCode
	Period PeriodKey
	Doc    DocType
}

func (u Upload) Scope() Scope {
	return Scope{Agent: u.AgentCode, Period: u.Period, Doc: u.DocType}
}
