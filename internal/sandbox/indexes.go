package sandbox

import (
	"context"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/sqlcheck"
)

// ApplyIndexes vets advisor-supplied DDL and creates the indexes inside
// the sandbox. Only single-statement CREATE INDEX passes the vet; the
// target relation is rewritten into the sandbox schema and the index
// name gets the sandbox suffix so repeated rounds cannot collide.
// Statements that fail individually are skipped; the call errors only
// when nothing could be applied.
func (s *Sandbox) ApplyIndexes(ctx context.Context, ddls []string) ([]string, error) {
	if len(ddls) == 0 {
		return nil, nil
	}

	applied := make([]string, 0, len(ddls))
	var lastErr error
	for _, ddl := range ddls {
		stmt, err := s.vetIndexDDL(ddl)
		if err != nil {
			s.manager.logger.Warn("rejected index statement", "ddl", ddl, "error", err)
			lastErr = err
			continue
		}
		if err := s.manager.db.Exec(ctx, stmt); err != nil {
			s.manager.logger.Warn("index creation failed", "ddl", stmt, "error", err)
			lastErr = domain.ErrSandbox("create index: %s", err)
			continue
		}
		applied = append(applied, stmt)
	}

	if len(applied) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return applied, nil
}

// vetIndexDDL parses one statement, confirms it is CREATE INDEX, and
// retargets it at the sandbox clone of its relation.
func (s *Sandbox) vetIndexDDL(ddl string) (string, error) {
	res, err := pg_query.Parse(ddl)
	if err != nil {
		return "", domain.ErrSandbox("index statement does not parse: %s", err)
	}
	if len(res.Stmts) != 1 {
		return "", domain.ErrSandbox("index DDL must be a single statement")
	}

	idx := res.Stmts[0].Stmt.GetIndexStmt()
	if idx == nil {
		kind, _ := sqlcheck.Classify(ddl)
		return "", domain.ErrSandbox("only CREATE INDEX is allowed in the sandbox, got %s", kind)
	}
	if idx.Relation == nil {
		return "", domain.ErrSandbox("index statement names no relation")
	}

	idx.Relation.Catalogname = ""
	idx.Relation.Schemaname = s.Name
	if idx.Idxname != "" {
		idx.Idxname = idx.Idxname + "_" + s.suffix()
	}
	// CONCURRENTLY cannot run in a transaction and buys nothing here.
	idx.Concurrent = false

	out, err := pg_query.Deparse(res)
	if err != nil {
		return "", domain.ErrSandbox("deparse index statement: %s", err)
	}
	return out, nil
}
