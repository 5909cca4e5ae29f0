package sandbox

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/sqlcheck"
)

// Rewrite points every cloned relation in the query at the sandbox
// schema. Each matching RangeVar gets the sandbox schema and the bare
// clone name, then the statement is deparsed back to SQL. Relations
// that were never cloned, CTE references included, stay untouched; a
// query touching no cloned table comes back verbatim.
func (s *Sandbox) Rewrite(sql string) (string, error) {
	res, err := pg_query.Parse(sql)
	if err != nil {
		return "", domain.ErrSandbox("rewrite query: %s", err)
	}

	cteNames := map[string]bool{}
	sqlcheck.Walk(res, func(n interface{}) bool {
		if cte, ok := n.(*pg_query.CommonTableExpr); ok {
			cteNames[cte.Ctename] = true
		}
		return true
	})

	changed := false
	sqlcheck.Walk(res, func(n interface{}) bool {
		rv, ok := n.(*pg_query.RangeVar)
		if !ok {
			return true
		}
		if rv.Schemaname == "" && cteNames[rv.Relname] {
			return true
		}

		name := rv.Relname
		if rv.Schemaname != "" {
			name = rv.Schemaname + "." + rv.Relname
		}
		bare, cloned := s.cloned[name]
		if !cloned {
			return true
		}

		rv.Catalogname = ""
		rv.Schemaname = s.Name
		rv.Relname = bare
		changed = true
		return true
	})

	if !changed {
		return sql, nil
	}

	out, err := pg_query.Deparse(res)
	if err != nil {
		return "", domain.ErrSandbox("deparse rewritten query: %s", err)
	}
	return out, nil
}
