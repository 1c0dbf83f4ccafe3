/*
digest.go - Identity hashing for statement rows

PURPOSE:
  Assigns every statement row a deterministic content digest over its
  identity-bearing fields. The digest is the sole dedup key: two rows with
  the same identity fields hash identically no matter which upload, batch,
  or ingestion path produced them.

HASH INPUT:
  A pipe-delimited string, fields in fixed order:

    agent | policy | pay-date | premium | commission | receipt | period

  - absent strings render as ""
  - an absent pay date renders as the fixed sentinel 1970-01-01
  - amounts are rounded to exactly 2 decimals ON THE NUMERIC VALUE and
    rendered without thousands separators (decimal.StringFixed, so the
    rendering is locale-independent)

  SHA-256 of the UTF-8 bytes, uppercase hex.

  Field order and rendering are part of the persisted contract: digests
  live in the database under a uniqueness constraint, so any change here
  is a data migration, not a refactor.
*/
package ingest

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// sentinelPayDate substitutes for an absent pay date in the hash input.
const sentinelPayDate = "1970-01-01"

// Digest computes the identity digest for a statement row within its
// canonical period. Pure function; the period must already be normalized.
func Digest(r StatementRecord, period PeriodKey) IdentityDigest {
	fields := []string{
		string(r.AgentCode),
		r.PolicyNo,
		digestDate(r.PayDate),
		r.Premium.StringFixed(2),
		r.ComAmt.StringFixed(2),
		r.ReceiptNo,
		string(period),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return IdentityDigest(fmt.Sprintf("%X", sum[:]))
}

// SameIdentity reports whether two rows carry the same identity-bearing
// fields within their periods, compared exactly as the digest renders
// them. Stores use it to tell a legitimate duplicate (same content under
// one digest) from a collision (different content, same digest), which
// is a broken hashing invariant and must escalate.
func SameIdentity(a StatementRecord, ap PeriodKey, b StatementRecord, bp PeriodKey) bool {
	return ap == bp &&
		a.AgentCode == b.AgentCode &&
		a.PolicyNo == b.PolicyNo &&
		a.ReceiptNo == b.ReceiptNo &&
		digestDate(a.PayDate) == digestDate(b.PayDate) &&
		a.Premium.StringFixed(2) == b.Premium.StringFixed(2) &&
		a.ComAmt.StringFixed(2) == b.ComAmt.StringFixed(2)
}

func digestDate(t time.Time) string {
	if t.IsZero() {
		return sentinelPayDate
	}
	return t.UTC().Format(time.DateOnly)
}
