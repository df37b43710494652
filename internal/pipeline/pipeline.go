// Package pipeline sequences one user turn end to end: context resolution,
// intent classification, SQL generation, policy validation, execution with
// bounded self-correction, and visualization selection.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/obexdata/warehouse-copilot/internal/audit"
	"github.com/obexdata/warehouse-copilot/internal/cubes"
	"github.com/obexdata/warehouse-copilot/internal/guard"
	"github.com/obexdata/warehouse-copilot/internal/llm"
	"github.com/obexdata/warehouse-copilot/internal/partition"
	"github.com/obexdata/warehouse-copilot/internal/session"
	"github.com/obexdata/warehouse-copilot/internal/viz"
	"github.com/obexdata/warehouse-copilot/internal/warehouse"
)

const clarificationMarker = "CLARIFICATION:"

// Pipeline wires the collaborators for one copilot deployment. Safe for
// concurrent use; all per-request state lives on the stack.
type Pipeline struct {
	gen      llm.Generator
	guard    *guard.Guard
	resolver *partition.Resolver
	exec     warehouse.Executor
	selector *viz.Selector
	journal  audit.Logger
	registry *cubes.Registry
	logger   *logrus.Logger
	retries  int
}

type Options struct {
	Generator llm.Generator
	Guard     *guard.Guard
	Resolver  *partition.Resolver
	Executor  warehouse.Executor
	Selector  *viz.Selector
	Journal   audit.Logger
	Registry  *cubes.Registry
	Logger    *logrus.Logger
	// Retries overrides MaxRetries when > 0.
	Retries int
}

func New(opts Options) *Pipeline {
	if opts.Journal == nil {
		opts.Journal = audit.Nop{}
	}
	if opts.Retries <= 0 {
		opts.Retries = MaxRetries
	}
	return &Pipeline{
		gen:      opts.Generator,
		guard:    opts.Guard,
		resolver: opts.Resolver,
		exec:     opts.Executor,
		selector: opts.Selector,
		journal:  opts.Journal,
		registry: opts.Registry,
		logger:   opts.Logger,
		retries:  opts.Retries,
	}
}

// Run drives one user turn. It never returns an error: every fault is folded
// into the discriminated Response, and every run is journaled.
func (p *Pipeline) Run(ctx context.Context, req Request) Response {
	rec := audit.Record{
		Timestamp: time.Now().UTC(),
		Username:  req.Username,
		Question:  req.Message,
	}

	resolved := p.resolveContext(ctx, req.Message, req.History)
	intent := p.classify(ctx, resolved)

	p.logger.WithFields(logrus.Fields{
		"user":   req.Username,
		"intent": intent.Type,
	}).Info("processing question")

	var resp Response
	switch intent.Type {
	case IntentGeneralChat:
		resp = p.chat(ctx, resolved)
	case IntentAmbiguous:
		q := intent.ClarificationQuestion
		if q == "" {
			q = "Could you clarify which metrics or dates you are interested in?"
		}
		resp = textResponse(q)
	default:
		resp = p.answerWithData(ctx, resolved, intent, req.History, &rec)
	}

	rec.ExecutionSuccess = resp.Type != "error"
	if resp.Type == "error" {
		rec.ErrorMessage = resp.Message
	}
	rec.VisualType = resp.VisualType
	rec.RetryCount = resp.RetryCount
	rec.RowCount = resp.Data.RowCount()
	p.journal.Log(ctx, rec)

	return resp
}

func (p *Pipeline) chat(ctx context.Context, message string) Response {
	reply, err := p.gen.Complete(ctx, llm.BuildChatPrompt(message))
	if err != nil {
		p.logger.WithError(err).Warn("chat reply failed")
		return textResponse("Hello! I am your data copilot. Ask me about users, volume, or points.")
	}
	return textResponse(reply)
}

// answerWithData is the self-correction loop: generate, validate, execute,
// feeding failures back into the next generation attempt. Policy violations
// are terminal; only syntax and execution faults are retried.
func (p *Pipeline) answerWithData(ctx context.Context, question string, intent Intent, history []session.Turn, rec *audit.Record) Response {
	dates := p.resolver.DateContext(ctx)
	rec.ResolvedLatestDS = dates.LatestDS

	in := llm.SQLPromptInput{
		Question:            question,
		History:             session.Compact(history, 4),
		Intent:              intent.Type,
		Entities:            intent.Entities,
		SchemaContext:       p.registry.SchemaContext(),
		ClassificationRules: p.registry.ClassificationRules(),
		Dates:               dates,
	}

	var lastSQL, lastErr string
	for attempt := 0; attempt <= p.retries; attempt++ {
		var prompt string
		if attempt == 0 {
			prompt = llm.BuildSQLPrompt(in)
		} else {
			p.logger.WithFields(logrus.Fields{"attempt": attempt, "error": lastErr}).Info("retrying SQL generation")
			prompt = llm.BuildRetryPrompt(in, lastSQL, lastErr)
		}

		raw, err := p.gen.Complete(ctx, prompt)
		if err != nil {
			lastErr = err.Error()
			continue
		}

		candidate := llm.SanitizeSQL(raw)
		if msg, isText := textualAnswer(candidate); isText {
			resp := textResponse(msg)
			resp.RetryCount = attempt
			return resp
		}

		safe, err := p.guard.ValidateAndFix(candidate)
		if err != nil {
			var violation *guard.PolicyViolation
			if errors.As(err, &violation) {
				// rule violation, not a transient fault; retrying risks
				// evasion loops
				rec.GeneratedSQL = candidate
				return errorResponse("Security Block: "+violation.Reason, attempt)
			}
			lastSQL, lastErr = candidate, err.Error()
			continue
		}

		finalSQL := dates.Replacer().Replace(safe)
		rec.GeneratedSQL = finalSQL
		rec.TablesUsed = guard.ReferencedTables(finalSQL)

		started := time.Now()
		tbl, err := p.exec.Query(ctx, finalSQL)
		rec.ExecutionMS = time.Since(started).Milliseconds()
		if err != nil {
			lastSQL, lastErr = finalSQL, err.Error()
			continue
		}

		return p.packageResult(ctx, tbl, finalSQL, question, intent, attempt)
	}

	return errorResponse(fmt.Sprintf("I could not produce a working query after %d attempts. Last error: %s", p.retries+1, lastErr), p.retries)
}

func (p *Pipeline) packageResult(ctx context.Context, tbl *warehouse.Table, sqlText, question string, intent Intent, attempt int) Response {
	if tbl.RowCount() == 0 {
		return Response{
			Type:       "success",
			Message:    "No data found.",
			SQL:        sqlText,
			Data:       tbl,
			VisualType: "none",
			RetryCount: attempt,
		}
	}

	clean := tbl.Sanitized()
	decision := p.selector.DetermineFormat(ctx, clean.Truncated(warehouse.ChartRowCap), sqlText, question, intent.Type)

	rowCap := warehouse.DisplayRowCap
	if decision.VisualType == "chart" {
		rowCap = warehouse.ChartRowCap
	}

	return Response{
		Type:       "success",
		Message:    p.summarize(ctx, clean, sqlText, question, decision.VisualType),
		SQL:        sqlText,
		Data:       clean.Truncated(rowCap),
		VisualType: decision.VisualType,
		Chart:      decision.Chart,
		Rationale:  decision.Rationale,
		RetryCount: attempt,
	}
}

// Small table-bound results get a narrative answer on top of the raw rows.
// Charts speak for themselves, and anything failing here just leaves the
// message empty.
const maxSummaryRows = 10

func (p *Pipeline) summarize(ctx context.Context, tbl *warehouse.Table, sqlText, question, visualType string) string {
	if visualType == "chart" || tbl.RowCount() > maxSummaryRows {
		return ""
	}
	rows := make([]map[string]any, 0, tbl.RowCount())
	for _, row := range tbl.Rows {
		m := make(map[string]any, len(tbl.Columns))
		for i, name := range tbl.Columns {
			if i < len(row) {
				m[name] = row[i]
			}
		}
		rows = append(rows, m)
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return ""
	}
	out, err := p.gen.Complete(ctx, llm.BuildSummaryPrompt(question, sqlText, string(encoded)))
	if err != nil {
		p.logger.WithError(err).Warn("result summary generation failed")
		return ""
	}
	return strings.TrimSpace(out)
}

// textualAnswer detects generation output that is a message rather than SQL:
// an explicit clarification marker, or anything not starting with a selection
// keyword. Such output is returned to the user directly, never parsed.
func textualAnswer(candidate string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(candidate))
	if strings.HasPrefix(upper, "CLARIFICATION") {
		msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(candidate), clarificationMarker))
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "CLARIFICATION"))
		return msg, true
	}
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return "", false
	}
	return strings.TrimSpace(candidate), true
}

// RunSQL executes caller-provided SQL through the same guard and boundary
// the generated path uses. Powers the direct SQL endpoint.
func (p *Pipeline) RunSQL(ctx context.Context, username, sqlText string) Response {
	rec := audit.Record{
		Timestamp: time.Now().UTC(),
		Username:  username,
		Question:  "[direct sql]",
	}

	dates := p.resolver.DateContext(ctx)
	rec.ResolvedLatestDS = dates.LatestDS

	safe, err := p.guard.ValidateAndFix(llm.SanitizeSQL(sqlText))
	if err != nil {
		var violation *guard.PolicyViolation
		msg := "Invalid SQL syntax."
		if errors.As(err, &violation) {
			msg = "Security Block: " + violation.Reason
		}
		rec.ErrorMessage = msg
		p.journal.Log(ctx, rec)
		return errorResponse(msg, 0)
	}

	finalSQL := dates.Replacer().Replace(safe)
	rec.GeneratedSQL = finalSQL
	rec.TablesUsed = guard.ReferencedTables(finalSQL)

	started := time.Now()
	tbl, err := p.exec.Query(ctx, finalSQL)
	rec.ExecutionMS = time.Since(started).Milliseconds()
	if err != nil {
		p.logger.WithError(err).Warn("direct SQL execution failed")
		rec.ErrorMessage = "query execution failed"
		p.journal.Log(ctx, rec)
		return errorResponse("Query execution failed.", 0)
	}

	rec.ExecutionSuccess = true
	rec.RowCount = tbl.RowCount()
	p.journal.Log(ctx, rec)

	return Response{
		Type:       "success",
		SQL:        finalSQL,
		Data:       tbl.Sanitized().Truncated(warehouse.DisplayRowCap),
		VisualType: "table",
	}
}

