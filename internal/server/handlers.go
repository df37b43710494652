package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/obexdata/warehouse-copilot/internal/partition"
	"github.com/obexdata/warehouse-copilot/internal/pipeline"
	"github.com/obexdata/warehouse-copilot/internal/session"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Pipeline *pipeline.Pipeline  // Core NL→SQL pipeline
	Resolver *partition.Resolver // Anchor date resolver
	Sessions *session.Store      // Redis-backed conversation history (optional)
	DevMode  bool                // Enable detailed error responses in development
	Logger   *logrus.Logger      // Structured logger
	// ChatTimeout bounds one full pipeline run including retries.
	ChatTimeout time.Duration
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health returns a simple health check endpoint
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// Chat runs one natural language turn through the full pipeline.
// History is loaded before the run and appended after, so follow-up
// questions resolve against what this user actually asked.
func (h *Handlers) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return h.err(c, http.StatusBadRequest, "message is required", nil)
	}
	if req.Username == "" {
		req.Username = "anonymous"
	}
	if err := session.ValidateUser(req.Username); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid username", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), h.ChatTimeout)
	defer cancel()

	var history []session.Turn
	if h.Sessions != nil {
		turns, err := h.Sessions.Recent(ctx, req.Username, 6)
		if err != nil {
			// degraded context, not a failed request
			h.Logger.WithError(err).Warn("failed to load history")
		} else {
			history = turns
		}
	}

	start := time.Now()
	resp := h.Pipeline.Run(ctx, pipeline.Request{
		Username: req.Username,
		Message:  req.Message,
		History:  history,
	})

	if h.Sessions != nil {
		reply := resp.Message
		if resp.Type == "success" && reply == "" {
			reply = "```sql\n" + resp.SQL + "\n```"
		}
		if err := h.Sessions.Append(ctx, req.Username, session.Turn{Role: "user", Content: req.Message}); err != nil {
			h.Logger.WithError(err).Warn("failed to record user turn")
		}
		if err := h.Sessions.Append(ctx, req.Username, session.Turn{Role: "assistant", Content: reply}); err != nil {
			h.Logger.WithError(err).Warn("failed to record assistant turn")
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{Response: resp, TookMs: time.Since(start).Milliseconds()})
}

// RunSQL validates and executes caller-written SQL through the same guard
// and execution boundary the generated path uses.
func (h *Handlers) RunSQL(c echo.Context) error {
	var req SQLRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if strings.TrimSpace(req.SQL) == "" {
		return h.err(c, http.StatusBadRequest, "sql is required", nil)
	}
	if req.Username == "" {
		req.Username = "anonymous"
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	resp := h.Pipeline.RunSQL(ctx, req.Username, req.SQL)
	if resp.Type == "error" {
		return c.JSON(http.StatusBadRequest, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Partition reports the anchor window currently grounding all queries.
func (h *Handlers) Partition(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	dc := h.Resolver.DateContext(ctx)
	return c.JSON(http.StatusOK, PartitionResponse{
		LatestDS:     dc.LatestDS,
		LatestDSDash: dc.LatestDSDash,
		Start7D:      dc.Start7D,
		Start30D:     dc.Start30D,
		TodayISO:     dc.TodayISO,
	})
}

// History returns a user's recent conversation turns
func (h *Handlers) History(c echo.Context) error {
	username := strings.TrimSpace(c.Param("username"))
	if err := session.ValidateUser(username); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid username", nil)
	}
	if h.Sessions == nil {
		return c.JSON(http.StatusOK, HistoryResponse{Items: []session.Turn{}})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	turns, err := h.Sessions.Recent(ctx, username, 0)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to load history", nil)
	}
	return c.JSON(http.StatusOK, HistoryResponse{Items: turns})
}

// HistoryClear drops a user's conversation history
func (h *Handlers) HistoryClear(c echo.Context) error {
	username := strings.TrimSpace(c.Param("username"))
	if err := session.ValidateUser(username); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid username", nil)
	}
	if h.Sessions == nil {
		return c.NoContent(http.StatusNoContent)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Sessions.Clear(ctx, username); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to clear history", nil)
	}
	return c.NoContent(http.StatusNoContent)
}
