// Package viz decides how a result set should be presented. The common
// two-column time-series shape is charted deterministically; only ambiguous
// shapes go back to the generation port for axis selection.
package viz

// ChartSpec is a fully-resolved, declarative chart description. The frontend
// renders it as-is; nothing here is code.
type ChartSpec struct {
	ChartType   string   `json:"chart_type"` // bar, line, area, pie, scatter, funnel
	Title       string   `json:"title"`
	XColumn     string   `json:"x_column"`
	YColumn     string   `json:"y_column"`
	YColumns    []string `json:"y_columns,omitempty"`
	ColorColumn string   `json:"color_column,omitempty"`
	X           []any    `json:"x"`
	Y           []any    `json:"y"`
}

// Decision is the selector's verdict for one result table.
type Decision struct {
	VisualType string     `json:"visual_type"` // "table", "chart", or "none"
	Chart      *ChartSpec `json:"chart,omitempty"`
	Rationale  string     `json:"rationale"`
}

func tableDecision(why string) Decision {
	return Decision{VisualType: "table", Rationale: why}
}
