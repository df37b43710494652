package viz

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/obexdata/warehouse-copilot/internal/llm"
	"github.com/obexdata/warehouse-copilot/internal/warehouse"
)

var (
	aggregationRe = regexp.MustCompile(`(?i)\b(group\s+by|count\s*\(|sum\s*\(|avg\s*\(|min\s*\(|max\s*\()`)
	funnelRe      = regexp.MustCompile(`(?i)\bfunnel\b`)
)

// Selector turns a result table into a presentation decision.
type Selector struct {
	gen    llm.Generator
	logger *logrus.Logger
}

func NewSelector(gen llm.Generator, logger *logrus.Logger) *Selector {
	return &Selector{gen: gen, logger: logger}
}

// DetermineFormat implements the decision sequence: KPI short-circuit, funnel
// delegation, metric detection, then the deterministic two-column time-series
// path. Only ambiguous shapes reach the generation port. Never returns an
// error; every failure degrades to a plain table.
func (s *Selector) DetermineFormat(ctx context.Context, tbl *warehouse.Table, sqlText, question, intent string) Decision {
	if tbl == nil || len(tbl.Rows) == 0 {
		return Decision{VisualType: "none", Rationale: "No data found."}
	}

	cols := cleanColumns(tbl.Columns, tbl.Rows)
	rowCount := len(tbl.Rows)

	if rowCount == 1 && len(cols) <= 2 {
		return tableDecision("KPI / single record.")
	}

	if funnelRe.MatchString(question) || funnelRe.MatchString(intent) {
		if d, ok := s.delegatedChart(ctx, tbl, cols, question, "funnel"); ok {
			return d
		}
		return tableDecision("Funnel spec unavailable, showing raw stages.")
	}

	metrics := 0
	for _, c := range cols {
		if isTrueMetric(c) {
			metrics++
		}
	}
	if metrics == 0 {
		return tableDecision("No measurable columns to plot.")
	}

	trendShape := aggregationRe.MatchString(sqlText) || strings.Contains(strings.ToLower(intent), "trend")
	if trendShape && rowCount > 1 {
		if len(cols) == 2 {
			if d, ok := deterministicTimeSeries(cols, question); ok {
				return d
			}
		}
		if len(cols) >= 3 {
			if d, ok := s.delegatedChart(ctx, tbl, cols, question, ""); ok {
				return d
			}
		}
	}

	return tableDecision("Standard data table.")
}

// deterministicTimeSeries builds the chart for the fully-specified shape of
// one date column plus one metric column, without any generation call.
func deterministicTimeSeries(cols []column, question string) (Decision, bool) {
	var timeCol, valCol *column
	for i := range cols {
		switch {
		case cols[i].isDate && timeCol == nil:
			timeCol = &cols[i]
		case isTrueMetric(cols[i]) && valCol == nil:
			valCol = &cols[i]
		}
	}
	if timeCol == nil || valCol == nil {
		return Decision{}, false
	}

	order := sortedIndex(*timeCol)
	x := make([]any, len(order))
	y := make([]any, len(order))
	for i, r := range order {
		x[i] = timeCol.values[r]
		y[i] = valCol.values[r] // already nil for non-finite values
	}

	kind := "area"
	switch n := len(order); {
	case n <= 15:
		kind = "bar"
	case n <= 100:
		kind = "line"
	}

	return Decision{
		VisualType: "chart",
		Chart: &ChartSpec{
			ChartType: kind,
			Title:     chartTitle(question),
			XColumn:   timeCol.name,
			YColumn:   valCol.name,
			X:         x,
			Y:         y,
		},
		Rationale: fmt.Sprintf("Two-column time series, %s chart.", kind),
	}, true
}

// delegatedChart asks the generation port for an axis mapping, then builds
// the chart data itself. The model only ever names columns; hallucinated
// names are rejected and the caller falls back to a table.
func (s *Selector) delegatedChart(ctx context.Context, tbl *warehouse.Table, cols []column, question, forceType string) (Decision, bool) {
	if s.gen == nil {
		return Decision{}, false
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	resp, err := s.gen.Complete(ctx, llm.BuildChartPrompt(question, names, sampleRows(tbl, 3)))
	if err != nil {
		s.logger.WithError(err).Warn("chart spec generation failed, falling back to table")
		return Decision{}, false
	}

	var spec struct {
		ChartType   string   `json:"chart_type"`
		XColumn     string   `json:"x_column"`
		YColumn     string   `json:"y_column"`
		YColumns    []string `json:"y_columns"`
		ColorColumn string   `json:"color_column"`
		Title       string   `json:"title"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &spec); err != nil {
		s.logger.WithError(err).Warn("unparseable chart spec")
		return Decision{}, false
	}
	if forceType != "" {
		spec.ChartType = forceType
	}

	xi := columnIndex(cols, spec.XColumn)
	yName := spec.YColumn
	if yName == "" && len(spec.YColumns) > 0 {
		yName = spec.YColumns[0]
	}
	yi := columnIndex(cols, yName)
	if xi < 0 || yi < 0 {
		s.logger.WithFields(logrus.Fields{"x": spec.XColumn, "y": yName}).Warn("chart spec names unknown columns")
		return Decision{}, false
	}

	order := sortedIndex(cols[xi])
	x := make([]any, len(order))
	y := make([]any, len(order))
	for i, r := range order {
		x[i] = cols[xi].values[r]
		y[i] = cols[yi].values[r]
	}

	if spec.Title == "" {
		spec.Title = chartTitle(question)
	}
	return Decision{
		VisualType: "chart",
		Chart: &ChartSpec{
			ChartType:   strings.ToLower(spec.ChartType),
			Title:       spec.Title,
			XColumn:     cols[xi].name,
			YColumn:     cols[yi].name,
			YColumns:    spec.YColumns,
			ColorColumn: spec.ColorColumn,
			X:           x,
			Y:           y,
		},
		Rationale: fmt.Sprintf("Generated %s chart.", strings.ToLower(spec.ChartType)),
	}, true
}

func columnIndex(cols []column, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c.name, name) {
			return i
		}
	}
	return -1
}

func sampleRows(tbl *warehouse.Table, n int) string {
	if len(tbl.Rows) < n {
		n = len(tbl.Rows)
	}
	var b strings.Builder
	b.WriteString(strings.Join(tbl.Columns, " | "))
	for _, row := range tbl.Rows[:n] {
		b.WriteString("\n")
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprintf("%v", v)
		}
		b.WriteString(strings.Join(parts, " | "))
	}
	return b.String()
}

func chartTitle(question string) string {
	q := strings.TrimSpace(question)
	if r := []rune(q); len(r) > 80 {
		q = string(r[:80])
	}
	if q == "" {
		return "Data Visualization"
	}
	first, size := utf8.DecodeRuneInString(q)
	return string(unicode.ToUpper(first)) + q[size:]
}
