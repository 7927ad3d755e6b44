package server

import (
	"encoding/json"

	"github.com/jaki95/registry-sync/internal/domain"
	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/syncer"
)

// ImportRequest is the body of a bulk import. Items stay raw so that each one
// is decoded, and may fail, on its own.
type ImportRequest struct {
	Items []json.RawMessage `json:"items" binding:"required"`
}

// RunAcceptedResponse is returned when a sync is started in the background.
type RunAcceptedResponse struct {
	Message string `json:"message"`
	RunID   string `json:"runId"`
}

// RunFailedResponse carries the partial summary of a failed sync.
type RunFailedResponse struct {
	Error   string          `json:"error"`
	Summary *syncer.Summary `json:"summary,omitempty"`
}

// ProgressResponse is a progress snapshot with its page completion percentage.
type ProgressResponse struct {
	progress.Snapshot
	Percent float64 `json:"percent"`
}

// ImportFailedResponse carries the partial summary of a failed import.
type ImportFailedResponse struct {
	Error   string                `json:"error"`
	Summary *syncer.ImportSummary `json:"summary,omitempty"`
}

// OperatorListResponse is a page of stored operator records.
type OperatorListResponse struct {
	Operators  []domain.OperatorRecord `json:"operators"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"pageSize"`
	Total      int                     `json:"total"`
	TotalPages int                     `json:"totalPages"`
}

// MessageResponse represents a generic message payload used for success responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents a generic error payload used for error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Constants for pagination
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)
