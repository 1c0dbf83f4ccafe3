package commission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/ingest"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"1000.50", "1000.5"},
		{"1,000.50", "1000.5"},
		{"1,234,567.89", "1234567.89"},
		{"  250  ", "250"},
		{"", "0"},
		{"n/a", "0"},
		{"-45.20", "-45.2"},
	}
	for _, tc := range cases {
		got := commission.ParseAmount(tc.raw)
		assert.Equal(t, tc.want, got.String(), "raw %q", tc.raw)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{"2025-06-15", "15/06/2025", "15-Jun-2025", " 2025-06-15 "} {
		assert.Equal(t, want, commission.ParseDate(raw), "raw %q", raw)
	}

	// Unparseable and empty cells fall back to the zero time.
	assert.True(t, commission.ParseDate("June the 15th").IsZero())
	assert.True(t, commission.ParseDate("").IsZero())
}

func TestRowGet_HeaderAliases(t *testing.T) {
	r := commission.Row{"POLICY_NO": "POL-1", "holder": "  John Doe  "}

	assert.Equal(t, "POL-1", r.Get("policy_no", "PolicyNo", "POLICY_NO"))
	assert.Equal(t, "John Doe", r.Get("holder", "Holder"))
	assert.Equal(t, "", r.Get("receipt_no", "ReceiptNo"))
}

func TestStatementFromRow(t *testing.T) {
	r := commission.Row{
		"policy_no":  "POL-123",
		"holder":     "Jane Doe",
		"pay_date":   "15/06/2025",
		"receipt_no": "R-9",
		"premium":    "1,000.00",
		"com_rate":   "0.05",
		"com_amt":    "50.00",
		"MONTH_YEAR": "COM_JUN_2025",
	}

	rec := commission.StatementFromRow(r, "AG001")

	assert.Equal(t, ingest.AgentCode("AG001"), rec.AgentCode, "falls back to batch agent")
	assert.Equal(t, "POL-123", rec.PolicyNo)
	assert.Equal(t, "Jane Doe", rec.Holder)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), rec.PayDate)
	assert.Equal(t, "1000", rec.Premium.String())
	assert.Equal(t, "50", rec.ComAmt.String())
	assert.Equal(t, ingest.RawPeriodLabel("COM_JUN_2025"), rec.Label)
}

func TestStatementFromRow_RowAgentWins(t *testing.T) {
	r := commission.Row{"agent_code": "AG777", "policy_no": "POL-1"}
	rec := commission.StatementFromRow(r, "AG001")
	assert.Equal(t, ingest.AgentCode("AG777"), rec.AgentCode)
}

func TestInferAgentCode(t *testing.T) {
	rows := []commission.Row{
		{"policy_no": "POL-1"},
		{"agent_code": "AG555"},
	}
	assert.Equal(t, ingest.AgentCode("AG555"), commission.InferAgentCode(rows, "FALLBACK"))
	assert.Equal(t, ingest.AgentCode("FALLBACK"), commission.InferAgentCode(nil, "FALLBACK"))
}

func TestInferMonthLabel(t *testing.T) {
	rows := []commission.Row{{"month_year": "Jun 2025"}}

	assert.Equal(t, ingest.RawPeriodLabel("2025-06"), commission.InferMonthLabel(rows, "2025-06"), "hint wins")
	assert.Equal(t, ingest.RawPeriodLabel("Jun 2025"), commission.InferMonthLabel(rows, ""))
	assert.Equal(t, ingest.RawPeriodLabel(""), commission.InferMonthLabel(nil, "  "))
}

func TestParseDocType(t *testing.T) {
	for raw, want := range map[string]ingest.DocType{
		"statement":    ingest.DocStatement,
		"SCHEDULE":     ingest.DocSchedule,
		" Terminated ": ingest.DocTerminated,
	} {
		got, err := commission.ParseDocType(raw)
		require.NoError(t, err, "raw %q", raw)
		assert.Equal(t, want, got)
	}

	_, err := commission.ParseDocType("invoice")
	assert.ErrorIs(t, err, ingest.ErrInvalidDocType)
}

func TestBuildBatch_Statement(t *testing.T) {
	rows := []commission.Row{
		{"agent_code": "AG010", "policy_no": "POL-1", "premium": "100.00", "com_amt": "5.00"},
		{"policy_no": "POL-2", "premium": "200.00", "com_amt": "10.00"},
	}

	batch, err := commission.BuildBatch("statement", "", "", "jun.pdf", "COM_JUN_2025", rows)
	require.NoError(t, err)

	assert.Equal(t, ingest.AgentCode("AG010"), batch.AgentCode, "agent inferred from rows")
	assert.Equal(t, ingest.DocStatement, batch.DocType)
	assert.Equal(t, ingest.RawPeriodLabel("COM_JUN_2025"), batch.Label)
	require.Len(t, batch.Statements, 2)
	assert.Equal(t, ingest.AgentCode("AG010"), batch.Statements[1].AgentCode, "row without agent inherits")
	assert.Empty(t, batch.Schedule)
	assert.Empty(t, batch.Terminated)
}

func TestBuildBatch_UnknownDocType(t *testing.T) {
	_, err := commission.BuildBatch("invoice", "AG001", "", "x.pdf", "", nil)
	assert.ErrorIs(t, err, ingest.ErrInvalidDocType)
}
