package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/obexdata/warehouse-copilot/internal/llm"
	"github.com/obexdata/warehouse-copilot/internal/session"
)

// classify categorizes the message before any SQL is generated. Every
// failure falls open to data_query: attempting an answer beats silently
// dropping the request.
func (p *Pipeline) classify(ctx context.Context, message string) Intent {
	resp, err := p.gen.Complete(ctx, llm.BuildIntentPrompt(message))
	if err != nil {
		p.logger.WithError(err).Warn("intent classification failed, assuming data query")
		return Intent{Type: IntentDataQuery}
	}

	var intent Intent
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &intent); err != nil {
		p.logger.WithError(err).Warn("unparseable intent, assuming data query")
		return Intent{Type: IntentDataQuery}
	}

	switch intent.Type {
	case IntentDataQuery, IntentGeneralChat, IntentAmbiguous:
		return intent
	default:
		return Intent{Type: IntentDataQuery, Entities: intent.Entities, TimeRange: intent.TimeRange}
	}
}

// resolveContext rewrites a vague follow-up into a standalone question when
// prior turns exist and the resolver is confident enough. It never blocks
// the pipeline: any failure returns the raw message with zero confidence.
func (p *Pipeline) resolveContext(ctx context.Context, message string, history []session.Turn) string {
	if len(history) == 0 {
		return message
	}

	resp, err := p.gen.Complete(ctx, llm.BuildContextPrompt(message, session.Compact(history, 3)))
	if err != nil {
		p.logger.WithError(err).Warn("context resolution failed, using raw message")
		return message
	}

	var res Resolution
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &res); err != nil {
		p.logger.WithError(err).Warn("unparseable context resolution, using raw message")
		return message
	}

	rewritten := strings.TrimSpace(res.RewrittenQuery)
	if rewritten == "" || res.Confidence < ConfidenceThreshold {
		return message
	}
	if rewritten != message {
		p.logger.WithField("rewritten", rewritten).Debug("resolved follow-up question")
	}
	return rewritten
}
