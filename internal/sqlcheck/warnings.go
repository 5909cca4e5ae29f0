package sqlcheck

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// collectWarnings scans a valid SELECT tree for constructs that tend to
// perform badly. Warnings are advisory and never block validation. Each
// kind is reported at most once.
func collectWarnings(tree *pg_query.ParseResult) []string {
	var warnings []string
	emitted := map[string]bool{}
	emit := func(kind, msg string) {
		if !emitted[kind] {
			emitted[kind] = true
			warnings = append(warnings, msg)
		}
	}

	Walk(tree, func(n interface{}) bool {
		switch v := n.(type) {
		case *pg_query.ColumnRef:
			for _, f := range v.Fields {
				if f.GetAStar() != nil {
					emit("star", "SELECT * fetches every column; list only the columns you need")
				}
			}
		case *pg_query.A_Expr:
			switch v.Kind {
			case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
				if pattern, ok := constString(v.Rexpr); ok && strings.HasPrefix(pattern, "%") {
					emit("like", "leading-wildcard LIKE pattern cannot use a btree index")
				}
			case pg_query.A_Expr_Kind_AEXPR_IN:
				if list := v.Rexpr.GetList(); list != nil && len(list.Items) > largeInListSize {
					emit("in", fmt.Sprintf("IN list with %d items; consider a join against a VALUES list or = ANY(array)", len(list.Items)))
				}
			}
		case *pg_query.BoolExpr:
			switch v.Boolop {
			case pg_query.BoolExprType_OR_EXPR:
				emit("or", "OR conditions may prevent index usage; consider rewriting as UNION")
			case pg_query.BoolExprType_NOT_EXPR:
				if containsSubLink(v.Args) {
					emit("notin", "NOT IN with a subquery is slow and null-hostile; consider NOT EXISTS")
				}
			}
		}
		return true
	})

	if sel := topSelect(tree); sel != nil {
		if len(sel.SortClause) > 0 && sel.LimitCount == nil {
			emit("sort", "ORDER BY without LIMIT sorts the entire result set")
		}
	}

	return warnings
}

// largeInListSize is the literal count past which an IN list draws a
// warning.
const largeInListSize = 100

func topSelect(tree *pg_query.ParseResult) *pg_query.SelectStmt {
	if len(tree.Stmts) == 0 {
		return nil
	}
	return tree.Stmts[0].Stmt.GetSelectStmt()
}

// constString unwraps a string constant node.
func constString(node *pg_query.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	ac := node.GetAConst()
	if ac == nil {
		return "", false
	}
	if s := ac.GetSval(); s != nil {
		return s.Sval, true
	}
	return "", false
}

func containsSubLink(nodes []*pg_query.Node) bool {
	found := false
	for _, n := range nodes {
		walkNode(n, func(m interface{}) bool {
			if _, ok := m.(*pg_query.SubLink); ok {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}
