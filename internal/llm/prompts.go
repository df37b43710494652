package llm

import (
	"fmt"
	"strings"

	"github.com/obexdata/warehouse-copilot/internal/partition"
)

// SQLPromptInput carries everything the generation prompt needs. The date
// context deliberately exposes only substitution tokens: the model writes
// placeholders and never sees real dates it could get creative with.
type SQLPromptInput struct {
	Question            string
	History             string
	Intent              string
	Entities            []string
	SchemaContext       string
	ClassificationRules string
	Dates               partition.Context
}

// BuildSQLPrompt renders the system prompt for NL→SQL generation.
func BuildSQLPrompt(in SQLPromptInput) string {
	var b strings.Builder

	if in.History != "" {
		b.WriteString("CONVERSATION HISTORY:\n")
		b.WriteString(in.History)
		b.WriteString("\n\n")
	}

	b.WriteString("You are an expert PostgreSQL generator for an exchange data warehouse.\n\n")

	b.WriteString("CURRENT CONTEXT:\n")
	b.WriteString("- System: batch warehouse, partitioned by ds (text, YYYYMMDD).\n")
	fmt.Fprintf(&b, "- Anchor date (latest data): %s (partition ds='%s').\n", in.Dates.LatestDSDash, in.Dates.LatestDS)
	fmt.Fprintf(&b, "- Real time: %s. Do NOT use this for data filtering.\n\n", in.Dates.TodayISO)

	if in.Intent != "" {
		fmt.Fprintf(&b, "INTENT: %s\n", in.Intent)
	}
	if len(in.Entities) > 0 {
		fmt.Fprintf(&b, "ENTITIES: %s\n", strings.Join(in.Entities, ", "))
	}
	b.WriteString("\n")

	b.WriteString("AVAILABLE TABLES:\n")
	b.WriteString(in.SchemaContext)
	b.WriteString("\n\n")

	b.WriteString(in.ClassificationRules)
	b.WriteString("\n")

	b.WriteString(`DATE PLACEHOLDERS (use these literal tokens, never real dates):
- Latest partition: '{latest_ds}' (compact) / '{latest_ds_dash}' (dashed)
- Last 7 days:  ds BETWEEN '{start_7d}' AND '{latest_ds}'
- Last 30 days: ds BETWEEN '{start_30d}' AND '{latest_ds}'
- This month start: '{start_this_month_dash}' (dashed, for date columns)
- Last month: '{start_last_month_dash}' to '{end_last_month_dash}'

TIME HANDLING:
- NEVER use NOW(), CURRENT_DATE, CURRENT_TIMESTAMP, or hour-level intervals.
- "Today", "real time", or "last X hours" means the latest available daily data: ds='{latest_ds}'.

TREND RULES:
1. A trend or history question without an explicit range defaults to the last 30 days.
2. ALWAYS ORDER BY the time column ASC so charts flow old to new.
3. Do NOT add LIMIT to trend queries with a date filter.

SQL RULES:
1. Return a single SELECT statement. No comments, no explanation, only SQL.
2. When joining on user_code, cast both sides to TEXT: ON a.user_code::TEXT = b.user_code::TEXT.
3. Treat user_code as a string in WHERE clauses, e.g. user_code = '10000047'.
4. Funnels use UNION ALL with one row per stage.
5. Only use LIMIT when listing raw records (e.g. LIMIT 100), never for GROUP BY aggregations.

`)

	fmt.Fprintf(&b, "NEW QUESTION: %s\n", in.Question)
	return b.String()
}

// BuildRetryPrompt renders the self-correction prompt: the failing SQL plus
// the verbatim error, so the model can see exactly what the engine rejected.
func BuildRetryPrompt(in SQLPromptInput, failedSQL, dbError string) string {
	var b strings.Builder
	b.WriteString(BuildSQLPrompt(in))
	b.WriteString("\nYOUR PREVIOUS ATTEMPT FAILED.\n\nFailed SQL:\n")
	b.WriteString(failedSQL)
	b.WriteString("\n\nDatabase error:\n")
	b.WriteString(dbError)
	b.WriteString("\n\nFix the SQL. Return only the corrected SELECT statement.\n")
	return b.String()
}

// BuildIntentPrompt renders the classification prompt. Output is strict JSON.
func BuildIntentPrompt(question string) string {
	return fmt.Sprintf(`You are the intent classifier for an exchange BI copilot.
Categorize the user's input into JSON.

CATEGORIES:
1. 'data_query': user asks for stats, numbers, lists, trends, or charts.
2. 'general_chat': greetings, thanks, or non-data questions.
3. 'ambiguous': vague requests like "show me data" without saying what data.

OUTPUT: strict JSON only, no markdown.
{
  "intent_type": "data_query",
  "entities": ["users", "volume"],
  "time_range": "last_7_days",
  "needs_clarification": false,
  "clarification_question": null
}

USER MESSAGE: %q

Return JSON:`, question)
}

// BuildContextPrompt renders the follow-up resolution prompt.
func BuildContextPrompt(question, history string) string {
	return fmt.Sprintf(`You are a context resolution engine for a SQL BI copilot.

INPUT: conversation history plus the current user message, which is often a
vague follow-up ("and their volume", "yes", "make it daily").

TASK: find the anchor entities in the history (partner IDs, date ranges, user
segments) and rewrite the current message into a fully standalone question.

OUTPUT (JSON ONLY):
{
  "is_followup": true,
  "anchor_entities": ["Partner 100"],
  "rewritten_query": "Show trading volume for users belonging to Partner 100",
  "confidence": 0.95
}

If the message is a new topic, set is_followup=false and pass it through
unchanged with confidence 1.0.

HISTORY:
%s

CURRENT MESSAGE: %q

RESPONSE (JSON):`, history, question)
}

// BuildChartPrompt asks for a declarative chart spec. The response is a plain
// JSON mapping of columns to axes; no code is ever requested or executed.
func BuildChartPrompt(question string, columns []string, sampleRows string) string {
	return fmt.Sprintf(`You are a data visualization expert.
User question: %q
Data columns: %s
Data sample (top rows):
%s

Task: return a JSON object (NO CODE) describing how to visualize this data.

Rules:
1. Pick the best chart_type: 'bar', 'line', 'pie', 'scatter', 'funnel', 'area'.
2. Identify x_column (categories/dates) and y_column (values).
3. For multiple series set color_column, or list y_columns: ["col1", "col2"].
4. Provide a short title.

Response format (JSON ONLY):
{
  "chart_type": "bar",
  "x_column": "registration_date",
  "y_column": "user_count",
  "title": "Daily Registrations",
  "color_column": null
}`, question, strings.Join(columns, ", "), sampleRows)
}

// BuildChatPrompt handles general conversation without touching the warehouse.
func BuildChatPrompt(question string) string {
	return fmt.Sprintf(`You are the BI copilot for an exchange data platform.
The user is making conversation rather than asking for data. Reply briefly
and helpfully. If they seem to want data, suggest a concrete question they
could ask, e.g. "show trading volume for the last 7 days".

USER: %s`, question)
}

// BuildSummaryPrompt asks for a short narrative over executed results.
func BuildSummaryPrompt(question, sql, rowsJSON string) string {
	return fmt.Sprintf(`You are a helpful analyst summarising query results.

User question:
%s

SQL that was executed:
%s

Query results in JSON (array of objects, can be empty):
%s

Instructions:
- If the result set is empty, say that no data was found.
- Otherwise answer concisely with the key numbers, rounded reasonably.
- Do not restate the raw JSON.`, question, sql, rowsJSON)
}
