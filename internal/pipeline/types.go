package pipeline

import (
	"github.com/obexdata/warehouse-copilot/internal/session"
	"github.com/obexdata/warehouse-copilot/internal/viz"
	"github.com/obexdata/warehouse-copilot/internal/warehouse"
)

const (
	// MaxRetries is the number of additional generation attempts after the
	// first one fails on a retryable fault.
	MaxRetries = 2
	// ConfidenceThreshold gates whether a rewritten follow-up replaces the
	// raw message.
	ConfidenceThreshold = 0.7

	IntentDataQuery   = "data_query"
	IntentGeneralChat = "general_chat"
	IntentAmbiguous   = "ambiguous"
)

// Request is one user turn.
type Request struct {
	Username string
	Message  string
	History  []session.Turn
}

// Intent is the classifier's verdict.
type Intent struct {
	Type                  string   `json:"intent_type"`
	Entities              []string `json:"entities"`
	TimeRange             string   `json:"time_range"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question"`
}

// Resolution is the context resolver's verdict on a possible follow-up.
type Resolution struct {
	IsFollowup     bool     `json:"is_followup"`
	AnchorEntities []string `json:"anchor_entities"`
	RewrittenQuery string   `json:"rewritten_query"`
	Confidence     float64  `json:"confidence"`
}

// Response is the discriminated result of one pipeline run.
type Response struct {
	Type       string           `json:"type"` // "text", "success", or "error"
	Message    string           `json:"message,omitempty"`
	SQL        string           `json:"sql,omitempty"`
	Data       *warehouse.Table `json:"data,omitempty"`
	VisualType string           `json:"visual_type,omitempty"`
	Chart      *viz.ChartSpec   `json:"chart,omitempty"`
	Rationale  string           `json:"rationale,omitempty"`
	RetryCount int              `json:"retry_count"`
}

func textResponse(msg string) Response {
	return Response{Type: "text", Message: msg, VisualType: "none"}
}

func errorResponse(msg string, retries int) Response {
	return Response{Type: "error", Message: msg, RetryCount: retries}
}
