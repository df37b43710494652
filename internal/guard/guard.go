// Package guard is the safety gate between the SQL generator and the
// warehouse. It parses candidate SQL into an AST, rejects anything that is not
// a read-only selection, enforces the snapshot/incremental partition rules,
// and manages row limits, returning the canonical safe SQL text.
package guard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/obexdata/warehouse-copilot/internal/cubes"
)

// DefaultRowLimit is injected into raw-row queries that carry no limit.
const DefaultRowLimit = 100

// ErrInvalidSQL marks text that could not be parsed at all. Unlike a
// PolicyViolation this is a generation fault: the orchestrator feeds it back
// to the generator and retries.
var ErrInvalidSQL = errors.New("invalid SQL syntax")

// PolicyViolation is returned when a query breaks a safety or partition rule.
// The reason is caller-actionable and passed through verbatim; the
// orchestrator never retries it.
type PolicyViolation struct {
	Reason string
}

func (e *PolicyViolation) Error() string { return e.Reason }

var (
	// INTERVAL '30' days -> INTERVAL '30 days'
	intervalRe = regexp.MustCompile(`(?i)INTERVAL\s+'(\d+)'\s+(day|month|year|hour|minute)s?`)

	// Wall-clock functions are never allowed to reach the warehouse; they are
	// rewritten to the {today_iso} token the execution boundary substitutes.
	// The identifier forms need a right boundary too, so a column or alias
	// like current_date_local is left alone.
	nowRe = regexp.MustCompile(`(?i)\bNOW\(\)|\bCURRENT_(?:DATE|TIMESTAMP)\b`)
)

// Guard validates and rewrites generated SQL. It is pure: no I/O, no state
// beyond the classification registry it reads.
type Guard struct {
	registry *cubes.Registry
	rowLimit int
}

func New(registry *cubes.Registry) *Guard {
	return &Guard{registry: registry, rowLimit: DefaultRowLimit}
}

// ValidateAndFix checks one candidate query and returns its safe canonical
// form. It returns *PolicyViolation for rule breaks and an error wrapping
// ErrInvalidSQL for unparseable input.
func (g *Guard) ValidateAndFix(sql string) (string, error) {
	sql = preprocess(sql)

	result, err := pg_query.Parse(sql)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSQL, err)
	}

	if len(result.Stmts) != 1 {
		return "", &PolicyViolation{Reason: "Security Alert: exactly one statement is allowed."}
	}

	sel, ok := result.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return "", &PolicyViolation{Reason: "Security Alert: only SELECT statements are allowed."}
	}

	// Walk the full tree. Any non-SELECT statement smuggled into a CTE or
	// subquery is a hard rejection.
	info := newQueryInfo()
	if err := inspectSelect(sel.SelectStmt, info); err != nil {
		return "", err
	}

	// Limit policy reasons about the outermost query only.
	info.hasGroupBy = len(sel.SelectStmt.GroupClause) > 0
	info.hasDescOrder = hasDescSort(sel.SelectStmt)

	g.applyLimitPolicy(sel.SelectStmt, info)

	if err := g.checkPartitionRules(info); err != nil {
		return "", err
	}

	out, err := pg_query.Deparse(result)
	if err != nil {
		return "", fmt.Errorf("%w: deparse: %v", ErrInvalidSQL, err)
	}
	return out, nil
}

// preprocess repairs common generator hallucinations before parsing.
func preprocess(sql string) string {
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	sql = intervalRe.ReplaceAllString(sql, "INTERVAL '$1 $2'")
	sql = nowRe.ReplaceAllString(sql, "'{today_iso}'")
	return sql
}

// applyLimitPolicy implements the smart limit rules on the top-level select:
// a grouped query sorted descending is a top-N and keeps its limit; a grouped
// query otherwise must not truncate its series, so the limit is stripped; a
// raw row dump with no aggregation gets the default limit injected.
func (g *Guard) applyLimitPolicy(sel *pg_query.SelectStmt, info *queryInfo) {
	hasLimit := sel.LimitCount != nil

	switch {
	case info.hasGroupBy && hasLimit && !info.hasDescOrder:
		sel.LimitCount = nil
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_DEFAULT
	case !info.hasAggregation && !hasLimit:
		sel.LimitCount = &pg_query.Node{
			Node: &pg_query.Node_AConst{
				AConst: &pg_query.A_Const{
					Val: &pg_query.A_Const_Ival{
						Ival: &pg_query.Integer{Ival: int32(g.rowLimit)},
					},
				},
			},
		}
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
	}
}

// checkPartitionRules enforces the warehouse partition semantics for every
// referenced table that the registry can classify.
func (g *Guard) checkPartitionRules(info *queryInfo) error {
	for table := range info.tables {
		cube := g.registry.Get(table)
		if cube == nil {
			continue
		}

		switch cube.Kind {
		case cubes.KindSnapshot:
			if info.partitionRange {
				timeCol := cube.TimeColumn
				if timeCol == "" {
					timeCol = "ds (single latest value only)"
				}
				return &PolicyViolation{Reason: fmt.Sprintf(
					"CRITICAL ERROR: '%s' is a SNAPSHOT table. You CANNOT use '%s BETWEEN'. "+
						"You MUST use %s = '{latest_ds}' and apply any date range to the '%s' column instead.",
					table, cubes.PartitionColumn, cubes.PartitionColumn, timeCol)}
			}
		case cubes.KindIncremental:
			if !info.partitionRef {
				return &PolicyViolation{Reason: fmt.Sprintf(
					"CRITICAL ERROR: '%s' is an INCREMENTAL table. You MUST include a '%s' filter "+
						"(e.g. %s BETWEEN '{start_7d}' AND '{latest_ds}').",
					table, cubes.PartitionColumn, cubes.PartitionColumn)}
			}
		}
	}
	return nil
}
