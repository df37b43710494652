package guard

import (
	"sort"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ReferencedTables returns the deduplicated table names a query reads,
// best-effort: unparseable input yields nil. Used for audit journaling.
func ReferencedTables(sql string) []string {
	result, err := pg_query.Parse(preprocess(sql))
	if err != nil {
		return nil
	}

	info := newQueryInfo()
	for _, stmt := range result.Stmts {
		sel, ok := stmt.Stmt.Node.(*pg_query.Node_SelectStmt)
		if !ok {
			continue
		}
		// Collection only; violations are irrelevant here.
		_ = inspectSelect(sel.SelectStmt, info)
	}

	out := info.Tables()
	sort.Strings(out)
	return out
}
