// Package commission is the upstream-parser boundary: it turns the raw,
// string-keyed rows produced by document extraction into the typed records
// the ingest engine consumes. Extraction itself (PDF/CSV) lives upstream;
// this package only cleans and types what extraction produced.
package commission

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/ingest"
)

// =============================================================================
// FIELD CLEANING
// =============================================================================

// CleanString trims a raw cell; whitespace-only cells become "".
func CleanString(v string) string {
	return strings.TrimSpace(v)
}

// ParseAmount parses a raw money cell into a decimal. Thousands separators
// are stripped here, at parse time, before any rounding happens downstream
// (the digest rounds the numeric value, never a formatted string).
// Unparseable or empty cells become zero.
func ParseAmount(v string) decimal.Decimal {
	s := strings.ReplaceAll(CleanString(v), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// payDateLayouts are the date shapes observed in upstream statements.
var payDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-Jan-2006",
	"2-Jan-2006",
}

// ParseDate parses a raw date cell. Unparseable or empty cells return the
// zero time, which the digest renders as its fixed absent-date sentinel.
func ParseDate(v string) time.Time {
	s := CleanString(v)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range payDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// =============================================================================
// ROW ACCESS - upstream extractors disagree on header casing
// =============================================================================

// Row is one raw extracted row, keyed by source column header.
type Row map[string]string

// Get returns the first non-empty cell among the given header aliases.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		if v := CleanString(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// TYPED RECORD BUILDERS
// =============================================================================

// StatementFromRow builds a StatementRecord from a raw row, falling back
// to the batch-level agent code when the row carries none.
func StatementFromRow(r Row, fallbackAgent ingest.AgentCode) ingest.StatementRecord {
	agent := r.Get("agent_code", "AgentCode", "AGENT_CODE")
	if agent == "" {
		agent = string(fallbackAgent)
	}
	return ingest.StatementRecord{
		AgentCode:  ingest.AgentCode(agent),
		PolicyNo:   r.Get("policy_no", "PolicyNo", "POLICY_NO"),
		Holder:     r.Get("holder", "Holder"),
		PolicyType: r.Get("policy_type", "PolicyType"),
		PayDate:    ParseDate(r.Get("pay_date", "PayDate", "PAY_DATE")),
		ReceiptNo:  r.Get("receipt_no", "ReceiptNo", "RECEIPT_NO"),
		Premium:    ParseAmount(r.Get("premium", "Premium", "PREMIUM")),
		ComRate:    ParseAmount(r.Get("com_rate", "ComRate", "COM_RATE")),
		ComAmt:     ParseAmount(r.Get("com_amt", "ComAmt", "COM_AMT")),
		Label:      ingest.RawPeriodLabel(r.Get("MONTH_YEAR", "month_year", "MonthYear")),
	}
}

// ScheduleFromRow builds a ScheduleRow from a raw row.
func ScheduleFromRow(r Row, fallbackAgent ingest.AgentCode, fallbackName string) ingest.ScheduleRow {
	agent := r.Get("agent_code", "AgentCode")
	if agent == "" {
		agent = string(fallbackAgent)
	}
	name := r.Get("agent_name", "AgentName")
	if name == "" {
		name = fallbackName
	}
	return ingest.ScheduleRow{
		AgentCode:       ingest.AgentCode(agent),
		AgentName:       name,
		BatchCode:       r.Get("commission_batch_code", "BatchCode"),
		TotalPremiums:   ParseAmount(r.Get("total_premiums", "TotalPremiums")),
		Income:          ParseAmount(r.Get("income", "Income")),
		TotalDeductions: ParseAmount(r.Get("total_deductions", "TotalDeductions")),
		NetCommission:   ParseAmount(r.Get("net_commission", "NetCommission")),
		Label:           ingest.RawPeriodLabel(r.Get("month_year", "MONTH_YEAR", "MonthYear")),
	}
}

// TerminatedFromRow builds a TerminatedRow from a raw row.
func TerminatedFromRow(r Row, fallbackAgent ingest.AgentCode) ingest.TerminatedRow {
	agent := r.Get("agent_code", "AgentCode")
	if agent == "" {
		agent = string(fallbackAgent)
	}
	return ingest.TerminatedRow{
		AgentCode:       ingest.AgentCode(agent),
		PolicyNo:        r.Get("policy_no", "PolicyNo"),
		Holder:          r.Get("holder", "Holder"),
		PolicyType:      r.Get("policy_type", "PolicyType"),
		PayDate:         ParseDate(r.Get("paydate", "pay_date", "PayDate")),
		ReceiptNo:       r.Get("receipt_no", "ReceiptNo"),
		Premium:         ParseAmount(r.Get("premium", "Premium")),
		ComRate:         ParseAmount(r.Get("com_rate", "ComRate")),
		ComAmt:          ParseAmount(r.Get("com_amt", "ComAmt")),
		Status:          r.Get("status", "Status"),
		Reason:          r.Get("reason", "Reason"),
		TerminationDate: ParseDate(r.Get("termination_date", "TerminationDate")),
		Label:           ingest.RawPeriodLabel(r.Get("month_year", "MONTH_YEAR", "MonthYear")),
	}
}

// =============================================================================
// BATCH-LEVEL INFERENCE
// =============================================================================

// InferAgentCode returns the first agent code found in the rows, or the
// fallback when no row carries one.
func InferAgentCode(rows []Row, fallback ingest.AgentCode) ingest.AgentCode {
	for _, r := range rows {
		if v := r.Get("agent_code", "AgentCode", "AGENT_CODE"); v != "" {
			return ingest.AgentCode(v)
		}
	}
	return fallback
}

// InferMonthLabel returns the caller's hint when present, otherwise the
// first month label found in the rows. The result is still raw: only
// ingest.NormalizePeriod decides whether it is acceptable.
func InferMonthLabel(rows []Row, hint string) ingest.RawPeriodLabel {
	if h := CleanString(hint); h != "" {
		return ingest.RawPeriodLabel(h)
	}
	for _, r := range rows {
		if v := r.Get("MONTH_YEAR", "month_year", "MonthYear"); v != "" {
			return ingest.RawPeriodLabel(v)
		}
	}
	return ""
}
