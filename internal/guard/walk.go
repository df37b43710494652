package guard

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/obexdata/warehouse-copilot/internal/cubes"
)

// aggregateFuncs are the function names that mark a query as an aggregation
// for the limit policy.
var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"stddev": true, "stddev_pop": true, "stddev_samp": true,
	"variance": true, "var_pop": true, "var_samp": true,
	"array_agg": true, "string_agg": true, "json_agg": true,
	"bool_and": true, "bool_or": true,
	"percentile_cont": true, "percentile_disc": true,
}

// queryInfo is everything one walk of the tree collects.
type queryInfo struct {
	tables         map[string]struct{}
	hasAggregation bool
	hasGroupBy     bool
	hasDescOrder   bool
	partitionRef   bool // partition column referenced anywhere in a WHERE
	partitionRange bool // BETWEEN over the partition column in a WHERE
}

func newQueryInfo() *queryInfo {
	return &queryInfo{tables: make(map[string]struct{})}
}

// Tables returns the referenced table names.
func (q *queryInfo) Tables() []string {
	out := make([]string, 0, len(q.tables))
	for t := range q.tables {
		out = append(out, t)
	}
	return out
}

// asSelect requires a statement-position node to be a SELECT. Anything else
// (DML, DDL, admin commands) is a smuggled write and a hard rejection.
func asSelect(node *pg_query.Node) (*pg_query.SelectStmt, error) {
	if node == nil {
		return nil, nil
	}
	sel, ok := node.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return nil, &PolicyViolation{Reason: "Security Alert: system commands are forbidden."}
	}
	return sel.SelectStmt, nil
}

// inspectSelect walks one SELECT (including set-operation arms and CTEs),
// collecting tables, aggregation markers, ordering direction and WHERE-clause
// partition facts, and rejecting any nested non-SELECT statement.
func inspectSelect(sel *pg_query.SelectStmt, info *queryInfo) error {
	if sel == nil {
		return nil
	}

	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			c, ok := cte.Node.(*pg_query.Node_CommonTableExpr)
			if !ok {
				continue
			}
			sub, err := asSelect(c.CommonTableExpr.Ctequery)
			if err != nil {
				return err
			}
			if err := inspectSelect(sub, info); err != nil {
				return err
			}
		}
	}

	// UNION / INTERSECT / EXCEPT arms.
	if err := inspectSelect(sel.Larg, info); err != nil {
		return err
	}
	if err := inspectSelect(sel.Rarg, info); err != nil {
		return err
	}

	if len(sel.GroupClause) > 0 {
		info.hasAggregation = true
	}

	for _, from := range sel.FromClause {
		if err := inspectFrom(from, info); err != nil {
			return err
		}
	}

	if sel.WhereClause != nil {
		collectWhereFacts(sel.WhereClause, info)
		if err := inspectExpr(sel.WhereClause, info); err != nil {
			return err
		}
	}

	for _, t := range sel.TargetList {
		if err := inspectExpr(t, info); err != nil {
			return err
		}
	}
	if err := inspectExpr(sel.HavingClause, info); err != nil {
		return err
	}
	for _, s := range sel.SortClause {
		if sb, ok := s.Node.(*pg_query.Node_SortBy); ok {
			if err := inspectExpr(sb.SortBy.Node, info); err != nil {
				return err
			}
		}
	}

	return nil
}

// hasDescSort reports whether any top-level ORDER BY item is descending.
func hasDescSort(sel *pg_query.SelectStmt) bool {
	for _, s := range sel.SortClause {
		if sb, ok := s.Node.(*pg_query.Node_SortBy); ok {
			if sb.SortBy.SortbyDir == pg_query.SortByDir_SORTBY_DESC {
				return true
			}
		}
	}
	return false
}

func inspectFrom(node *pg_query.Node, info *queryInfo) error {
	if node == nil {
		return nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		info.tables[strings.ToLower(n.RangeVar.Relname)] = struct{}{}
	case *pg_query.Node_RangeSubselect:
		sub, err := asSelect(n.RangeSubselect.Subquery)
		if err != nil {
			return err
		}
		return inspectSelect(sub, info)
	case *pg_query.Node_JoinExpr:
		if err := inspectFrom(n.JoinExpr.Larg, info); err != nil {
			return err
		}
		if err := inspectFrom(n.JoinExpr.Rarg, info); err != nil {
			return err
		}
		return inspectExpr(n.JoinExpr.Quals, info)
	}
	return nil
}

// inspectExpr recurses into expression nodes, flagging aggregate calls and
// validating subquery statements.
func inspectExpr(node *pg_query.Node, info *queryInfo) error {
	if node == nil {
		return nil
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_FuncCall:
		if name := funcName(n.FuncCall); aggregateFuncs[name] {
			info.hasAggregation = true
		}
		for _, a := range n.FuncCall.Args {
			if err := inspectExpr(a, info); err != nil {
				return err
			}
		}
	case *pg_query.Node_SubLink:
		sub, err := asSelect(n.SubLink.Subselect)
		if err != nil {
			return err
		}
		return inspectSelect(sub, info)
	case *pg_query.Node_BoolExpr:
		for _, a := range n.BoolExpr.Args {
			if err := inspectExpr(a, info); err != nil {
				return err
			}
		}
	case *pg_query.Node_AExpr:
		if err := inspectExpr(n.AExpr.Lexpr, info); err != nil {
			return err
		}
		return inspectExpr(n.AExpr.Rexpr, info)
	case *pg_query.Node_ResTarget:
		return inspectExpr(n.ResTarget.Val, info)
	case *pg_query.Node_TypeCast:
		return inspectExpr(n.TypeCast.Arg, info)
	case *pg_query.Node_NullTest:
		return inspectExpr(n.NullTest.Arg, info)
	case *pg_query.Node_CaseExpr:
		if err := inspectExpr(n.CaseExpr.Arg, info); err != nil {
			return err
		}
		for _, w := range n.CaseExpr.Args {
			if err := inspectExpr(w, info); err != nil {
				return err
			}
		}
		return inspectExpr(n.CaseExpr.Defresult, info)
	case *pg_query.Node_CaseWhen:
		if err := inspectExpr(n.CaseWhen.Expr, info); err != nil {
			return err
		}
		return inspectExpr(n.CaseWhen.Result, info)
	case *pg_query.Node_CoalesceExpr:
		for _, a := range n.CoalesceExpr.Args {
			if err := inspectExpr(a, info); err != nil {
				return err
			}
		}
	case *pg_query.Node_List:
		for _, item := range n.List.Items {
			if err := inspectExpr(item, info); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectWhereFacts gathers partition-column facts from a WHERE expression:
// whether the partition column is referenced at all, and whether it is the
// subject of a BETWEEN range.
func collectWhereFacts(node *pg_query.Node, info *queryInfo) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_ColumnRef:
		if columnName(n.ColumnRef) == cubes.PartitionColumn {
			info.partitionRef = true
		}
	case *pg_query.Node_AExpr:
		switch n.AExpr.Kind {
		case pg_query.A_Expr_Kind_AEXPR_BETWEEN,
			pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN,
			pg_query.A_Expr_Kind_AEXPR_BETWEEN_SYM,
			pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN_SYM:
			if cr, ok := n.AExpr.Lexpr.GetNode().(*pg_query.Node_ColumnRef); ok {
				if columnName(cr.ColumnRef) == cubes.PartitionColumn {
					info.partitionRange = true
				}
			}
		}
		collectWhereFacts(n.AExpr.Lexpr, info)
		collectWhereFacts(n.AExpr.Rexpr, info)
	case *pg_query.Node_BoolExpr:
		for _, a := range n.BoolExpr.Args {
			collectWhereFacts(a, info)
		}
	case *pg_query.Node_TypeCast:
		collectWhereFacts(n.TypeCast.Arg, info)
	case *pg_query.Node_NullTest:
		collectWhereFacts(n.NullTest.Arg, info)
	case *pg_query.Node_SubLink:
		if sel, ok := n.SubLink.Subselect.GetNode().(*pg_query.Node_SelectStmt); ok {
			collectWhereFacts(sel.SelectStmt.WhereClause, info)
		}
	case *pg_query.Node_List:
		for _, item := range n.List.Items {
			collectWhereFacts(item, info)
		}
	}
}

// columnName returns the unqualified, lowercased column name of a ColumnRef.
func columnName(cr *pg_query.ColumnRef) string {
	if len(cr.Fields) == 0 {
		return ""
	}
	last := cr.Fields[len(cr.Fields)-1]
	if s, ok := last.Node.(*pg_query.Node_String_); ok {
		return strings.ToLower(s.String_.Sval)
	}
	return ""
}

// funcName returns the unqualified, lowercased function name of a FuncCall.
func funcName(fc *pg_query.FuncCall) string {
	if len(fc.Funcname) == 0 {
		return ""
	}
	last := fc.Funcname[len(fc.Funcname)-1]
	if s, ok := last.Node.(*pg_query.Node_String_); ok {
		return strings.ToLower(s.String_.Sval)
	}
	return ""
}
