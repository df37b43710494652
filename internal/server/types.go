package server

import "github.com/obexdata/warehouse-copilot/internal/pipeline"

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"` // Service health status
}

// ChatRequest represents one natural language turn
type ChatRequest struct {
	Username string `json:"username"` // Caller identity for history and audit
	Message  string `json:"message"`  // Natural language question
}

// ChatResponse wraps the pipeline's discriminated result with timing
type ChatResponse struct {
	pipeline.Response
	TookMs int64 `json:"took_ms"` // End-to-end processing time
}

// SQLRequest represents a direct SQL execution request
type SQLRequest struct {
	Username string `json:"username"` // Caller identity for audit
	SQL      string `json:"sql"`      // SELECT statement; validated like generated SQL
}

// PartitionResponse reports the currently resolved anchor window
type PartitionResponse struct {
	LatestDS     string `json:"latest_ds"`      // Compact partition key, YYYYMMDD
	LatestDSDash string `json:"latest_ds_dash"` // Dashed ISO form
	Start7D      string `json:"start_7d"`       // 7-day window start, compact
	Start30D     string `json:"start_30d"`      // 30-day window start, compact
	TodayISO     string `json:"today_iso"`      // Real calendar date, never for filtering
}

// HistoryResponse lists a user's recent conversation turns
type HistoryResponse struct {
	Items any `json:"items"`
}
