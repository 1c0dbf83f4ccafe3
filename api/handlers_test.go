package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/ingest/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store.NewMemory())))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func statementRequest() map[string]any {
	return map[string]any{
		"agent_code": "AG001",
		"agent_name": "Agent One",
		"doc_type":   "statement",
		"file_name":  "jun.pdf",
		"month_year": "COM_JUN_2025",
		"rows": []map[string]string{
			{"policy_no": "POL-1", "receipt_no": "R1", "premium": "100.00", "com_amt": "5.00", "pay_date": "2025-06-15"},
			{"policy_no": "POL-2", "receipt_no": "R2", "premium": "200.00", "com_amt": "10.00", "pay_date": "2025-06-15"},
		},
	}
}

// =============================================================================
// POST /api/ingest
// =============================================================================

func TestAPI_IngestStatement(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/ingest", statementRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out api.IngestResultDTO
	decode(t, resp, &out)

	if out.MonthYear != "2025-06" {
		t.Errorf("month_year = %q, want 2025-06", out.MonthYear)
	}
	if out.RowsInserted != 2 || out.Duplicates != 0 {
		t.Errorf("inserted/duplicates = %d/%d, want 2/0", out.RowsInserted, out.Duplicates)
	}
	if out.UploadID == 0 {
		t.Error("upload_id missing from response")
	}
}

func TestAPI_IngestTwiceReportsDuplicates(t *testing.T) {
	srv := newTestServer(t)
	req := statementRequest()

	postJSON(t, srv.URL+"/api/ingest", req).Body.Close()
	resp := postJSON(t, srv.URL+"/api/ingest", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out api.IngestResultDTO
	decode(t, resp, &out)
	if out.RowsInserted != 0 || out.Duplicates != 2 {
		t.Errorf("inserted/duplicates = %d/%d, want 0/2", out.RowsInserted, out.Duplicates)
	}
}

func TestAPI_IngestRejectsBadLabel(t *testing.T) {
	srv := newTestServer(t)
	req := statementRequest()
	req["month_year"] = "Foo 2025"

	resp := postJSON(t, srv.URL+"/api/ingest", req)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	var out api.ErrorDTO
	decode(t, resp, &out)
	if out.Error == "" {
		t.Error("422 response must carry an error message")
	}
}

func TestAPI_IngestRejectsMissingAgent(t *testing.T) {
	srv := newTestServer(t)
	req := statementRequest()
	req["agent_code"] = ""
	// No agent in the rows either, so nothing to infer from.

	resp := postJSON(t, srv.URL+"/api/ingest", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPI_IngestRejectsUnknownDocType(t *testing.T) {
	srv := newTestServer(t)
	req := statementRequest()
	req["doc_type"] = "invoice"

	resp := postJSON(t, srv.URL+"/api/ingest", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPI_DryRunDoesNotPersist(t *testing.T) {
	srv := newTestServer(t)
	req := statementRequest()
	req["dry_run"] = true

	resp := postJSON(t, srv.URL+"/api/ingest", req)
	var out api.IngestResultDTO
	decode(t, resp, &out)
	if !out.DryRun || out.RowsInserted != 2 {
		t.Errorf("dry-run result = %+v", out)
	}

	// The scope must still be empty afterwards.
	resp, err := http.Get(srv.URL + "/api/uploads/active?agent_code=AG001&month_year=2025-06&doc_type=STATEMENT")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status after dry run = %d, want 404", resp.StatusCode)
	}
}

// =============================================================================
// GET /api/uploads, /api/uploads/active
// =============================================================================

func TestAPI_ListAndActiveUploads(t *testing.T) {
	srv := newTestServer(t)
	req := statementRequest()

	postJSON(t, srv.URL+"/api/ingest", req).Body.Close()
	req["file_name"] = "jun-v2.pdf"
	postJSON(t, srv.URL+"/api/ingest", req).Body.Close()

	// History keeps both uploads; the label filter accepts any grammar.
	resp, err := http.Get(srv.URL + "/api/uploads?agent_code=AG001&month_year=Jun+2025")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Count int             `json:"count"`
		Items []api.UploadDTO `json:"items"`
	}
	decode(t, resp, &list)
	if list.Count != 2 {
		t.Fatalf("upload count = %d, want 2", list.Count)
	}

	resp, err = http.Get(srv.URL + "/api/uploads/active?agent_code=AG001&month_year=2025/6&doc_type=STATEMENT")
	if err != nil {
		t.Fatal(err)
	}
	var active api.UploadDTO
	decode(t, resp, &active)
	if !active.IsActive || active.FileName != "jun-v2.pdf" {
		t.Errorf("active = %+v, want the v2 upload", active)
	}
}

func TestAPI_ActiveUploadRequiresFullScope(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/uploads/active?agent_code=AG001")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// =============================================================================
// GET /api/periods/normalize
// =============================================================================

func TestAPI_NormalizePeriod(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/periods/normalize?label=COM_JUN_2025")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out api.PeriodDTO
	decode(t, resp, &out)
	if out.Period != "2025-06" {
		t.Errorf("period = %q, want 2025-06", out.Period)
	}

	resp, err = http.Get(srv.URL + "/api/periods/normalize?label=Foo+2025")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status for bad label = %d, want 422", resp.StatusCode)
	}
}
