/*
handlers.go - HTTP API handlers for the ingestion engine

PURPOSE:
  Exposes the ingestion engine via a small REST surface. Handles HTTP
  request/response and JSON serialization, and delegates everything with
  an invariant to the ingest package.

ENDPOINTS:
  POST /api/ingest                 Ingest one batch (supports dry_run)
  GET  /api/uploads                List uploads (agent/period/doc filters)
  GET  /api/uploads/active         The scope's single active upload
  GET  /api/periods/normalize      Canonicalize a raw month label

ERROR HANDLING:
  - 400: malformed request body / missing parameters
  - 404: no active upload for the scope
  - 409: lost a same-scope ingestion race (retryable by the client)
  - 422: rejected month label or mismatched row period
  - 500: storage failures, broken invariants

SECURITY NOTE:
  No authentication. This service sits behind the upload frontend, which
  owns sessions and CSRF.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/ingest"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    ingest.TxStore
	Ingestor *ingest.Ingestor
}

func NewHandler(store ingest.TxStore) *Handler {
	return &Handler{
		Store:    store,
		Ingestor: ingest.NewIngestor(store),
	}
}

// =============================================================================
// INGESTION
// =============================================================================

// Ingest handles POST /api/ingest.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.AgentCode == "" {
		writeError(w, http.StatusBadRequest, "agent_code is required")
		return
	}

	batch, err := commission.BuildBatch(req.DocType, ingest.AgentCode(req.AgentCode),
		req.AgentName, req.FileName, req.MonthYear, req.Rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result ingest.IngestResult
	if req.DryRun {
		result, err = h.Ingestor.DryRun(r.Context(), batch)
	} else {
		result, err = h.Ingestor.Ingest(r.Context(), batch)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, IngestResultDTO{
		Status:       "success",
		UploadID:     int64(result.Upload.ID),
		AgentCode:    string(batch.AgentCode),
		DocType:      string(batch.DocType),
		MonthYear:    string(result.Period),
		RowsInserted: result.RowsInserted,
		Duplicates:   result.Duplicates,
		DryRun:       result.DryRun,
	})
}

// =============================================================================
// UPLOADS
// =============================================================================

// ListUploads handles GET /api/uploads.
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ingest.UploadFilter{
		Agent:      ingest.AgentCode(q.Get("agent_code")),
		Doc:        ingest.DocType(q.Get("doc_type")),
		ActiveOnly: q.Get("active") == "1" || q.Get("active") == "true",
		Limit:      200,
	}
	if label := q.Get("month_year"); label != "" {
		period, err := ingest.NormalizePeriod(label)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		filter.Period = period
	}

	uploads, err := h.Store.ListUploads(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]UploadDTO, 0, len(uploads))
	for _, up := range uploads {
		items = append(items, uploadDTO(up))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

// ActiveUpload handles GET /api/uploads/active. All three scope
// parameters are required; the response is the scope's single
// authoritative upload.
func (h *Handler) ActiveUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agent := q.Get("agent_code")
	label := q.Get("month_year")
	doc := ingest.DocType(q.Get("doc_type"))
	if agent == "" || label == "" || !doc.Valid() {
		writeError(w, http.StatusBadRequest, "agent_code, month_year and doc_type are required")
		return
	}

	period, err := ingest.NormalizePeriod(label)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	up, err := h.Store.ActiveUpload(r.Context(), ingest.Scope{
		Agent:  ingest.AgentCode(agent),
		Period: period,
		Doc:    doc,
	})
	if errors.Is(err, ingest.ErrUploadNotFound) {
		writeError(w, http.StatusNotFound, "no active upload for scope")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, uploadDTO(up))
}

// =============================================================================
// PERIODS
// =============================================================================

// NormalizePeriod handles GET /api/periods/normalize?label=...
func (h *Handler) NormalizePeriod(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	period, err := ingest.NormalizePeriod(label)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PeriodDTO{Label: label, Period: string(period)})
}

// =============================================================================
// HELPERS
// =============================================================================

func statusFor(err error) int {
	switch {
	case ingest.IsClientError(err):
		return http.StatusUnprocessableEntity
	case ingest.IsRetryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorDTO{Error: msg})
}
