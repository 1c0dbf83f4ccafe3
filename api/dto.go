/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  internal domain model. Amounts travel as strings so clients never see
  binary-float rendering of money.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/ingest"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// IngestRequest is one ingestion batch: an upload descriptor plus the
// document's raw rows, exactly as extraction produced them.
type IngestRequest struct {
	AgentCode string           `json:"agent_code"`
	AgentName string           `json:"agent_name,omitempty"`
	DocType   string           `json:"doc_type"` // statement | schedule | terminated
	FileName  string           `json:"file_name,omitempty"`
	MonthYear string           `json:"month_year"` // raw label; normalized server-side
	DryRun    bool             `json:"dry_run,omitempty"`
	Rows      []commission.Row `json:"rows"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// IngestResultDTO summarizes one ingestion.
type IngestResultDTO struct {
	Status       string `json:"status"`
	UploadID     int64  `json:"upload_id,omitempty"`
	AgentCode    string `json:"agent_code"`
	DocType      string `json:"doc_type"`
	MonthYear    string `json:"month_year"` // canonical YYYY-MM
	RowsInserted int    `json:"rows_inserted"`
	Duplicates   int    `json:"duplicates"`
	DryRun       bool   `json:"dry_run,omitempty"`
}

// UploadDTO represents an upload in API responses.
type UploadDTO struct {
	UploadID  int64  `json:"upload_id"`
	AgentCode string `json:"agent_code"`
	AgentName string `json:"agent_name,omitempty"`
	DocType   string `json:"doc_type"`
	FileName  string `json:"file_name,omitempty"`
	MonthYear string `json:"month_year"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// PeriodDTO is the normalization endpoint's response.
type PeriodDTO struct {
	Label  string `json:"label"`
	Period string `json:"period"`
}

// ErrorDTO is the uniform error body.
type ErrorDTO struct {
	Error string `json:"error"`
}

func uploadDTO(up ingest.Upload) UploadDTO {
	return UploadDTO{
		UploadID:  int64(up.ID),
		AgentCode: string(up.AgentCode),
		AgentName: up.AgentName,
		DocType:   string(up.DocType),
		FileName:  up.FileName,
		MonthYear: string(up.Period),
		IsActive:  up.IsActive,
		CreatedAt: up.CreatedAt.UTC().Format(time.RFC3339),
	}
}
