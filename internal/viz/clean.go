package viz

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var identifierNameRe = regexp.MustCompile(`(?i)(^|_)(id|code|hash|addr|address|key|uuid)($|_)`)

var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// column is the cleaned view of one result column.
type column struct {
	name       string
	values     []any
	isDate     bool
	numeric    bool // every non-null value coerced to a number
	ints       bool // numeric and all integer-valued
	fromString bool // values arrived as text and were coerced
}

// cleanColumns coerces date-like and numeric-like values best-effort. Values
// that resist coercion stay as-is; NaN and Inf become nil, never zero.
func cleanColumns(names []string, rows [][]any) []column {
	cols := make([]column, len(names))
	for i, name := range names {
		c := column{name: name, values: make([]any, len(rows)), numeric: true, ints: true}
		dateHits, nonNull := 0, 0
		for r, row := range rows {
			v := row[i]
			if v == nil {
				c.values[r] = nil
				continue
			}
			nonNull++
			if f, ok := toFloat(v); ok {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					c.values[r] = nil
					continue
				}
				c.values[r] = f
				if f != math.Trunc(f) {
					c.ints = false
				}
				continue
			}
			if s, isStr := v.(string); isStr {
				if looksLikeDate(s) {
					c.numeric = false
					dateHits++
					c.values[r] = v
					continue
				}
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
					c.values[r] = f
					c.fromString = true
					if f != math.Trunc(f) {
						c.ints = false
					}
					continue
				}
			}
			c.numeric = false
			c.values[r] = v
		}
		nameSaysTime := strings.Contains(strings.ToLower(name), "date") ||
			strings.Contains(strings.ToLower(name), "time") ||
			strings.EqualFold(name, "ds") ||
			strings.Contains(strings.ToLower(name), "month") ||
			strings.Contains(strings.ToLower(name), "day")
		c.isDate = nonNull > 0 && (dateHits == nonNull || (nameSaysTime && dateHits > 0) || (nameSaysTime && c.numeric))
		if c.isDate {
			c.numeric = false
		}
		if nonNull == 0 {
			c.numeric = false
		}
		cols[i] = c
	}
	return cols
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func looksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// isTrueMetric reports whether a numeric column carries measurable values
// rather than identifiers. Name-based signals win; otherwise a column of
// mostly-unique integers is treated as an identifier.
func isTrueMetric(c column) bool {
	if !c.numeric {
		return false
	}
	if identifierNameRe.MatchString(c.name) {
		return false
	}
	// Integer codes stored as text ("10000047") masquerade as numbers once
	// coerced; near-total uniqueness gives them away as identifiers.
	if c.fromString && c.ints {
		seen := make(map[float64]struct{}, len(c.values))
		nonNull := 0
		for _, v := range c.values {
			f, ok := v.(float64)
			if !ok {
				continue
			}
			nonNull++
			seen[f] = struct{}{}
		}
		if nonNull > 1 && float64(len(seen))/float64(nonNull) > 0.9 {
			return false
		}
	}
	return true
}

// sortedIndex orders row indices by an axis column ascending so charts flow
// old to new (or low to high) regardless of the SQL's ordering. Numbers
// compare numerically, dates by calendar order, everything else as text.
func sortedIndex(c column) []int {
	idx := make([]int, len(c.values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return axisLess(c.values[idx[a]], c.values[idx[b]])
	})
	return idx
}

func axisLess(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return axisKey(a) < axisKey(b)
}

func axisKey(v any) string {
	switch x := v.(type) {
	case string:
		if t, ok := parseDate(x); ok {
			return t.Format("20060102150405")
		}
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
