package warehouse

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	// DisplayRowCap bounds what a chat response carries back to the client.
	DisplayRowCap = 100
	// ChartRowCap bounds what the visualization layer is allowed to see.
	ChartRowCap = 5000
)

// Table is an ordered result set. Column order follows the SELECT list so
// positional heuristics downstream stay meaningful.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Truncated returns a copy capped at n rows. The original is untouched so
// the chart path and the display path can apply different caps.
func (t *Table) Truncated(n int) *Table {
	if t == nil || len(t.Rows) <= n {
		return t
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Sanitized rewrites driver-specific and non-finite values into plain
// JSON-encodable ones. NaN and Inf become nil, never zero: a missing
// measurement must not masquerade as a real data point.
func (t *Table) Sanitized() *Table {
	if t == nil {
		return nil
	}
	out := &Table{Columns: t.Columns, Rows: make([][]any, len(t.Rows))}
	for i, row := range t.Rows {
		clean := make([]any, len(row))
		for j, v := range row {
			clean[j] = sanitizeValue(v)
		}
		out.Rows[i] = clean
	}
	return out
}

func sanitizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case *big.Int:
		if x == nil {
			return nil
		}
		return x.String()
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid || math.IsNaN(f.Float64) || math.IsInf(f.Float64, 0) {
			return nil
		}
		return f.Float64
	case time.Time:
		return x.Format(time.RFC3339)
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case []byte:
		return string(x)
	default:
		return v
	}
}
