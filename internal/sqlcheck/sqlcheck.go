// Package sqlcheck validates candidate SQL before it touches the target
// database.
//
// It parses queries with the PostgreSQL-native parser, classifies the
// statement, rejects everything that is not a single plain SELECT,
// extracts referenced tables, and collects advisory performance warnings.
// Validation never executes SQL.
package sqlcheck

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"pg-advisor/internal/domain"
)

// StatementType represents the kind of SQL statement.
type StatementType int

// SQL statement types identified during query classification.
const (
	StmtSelect StatementType = iota
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtCreateIndex
	StmtDDL
	StmtGrant
	StmtTransaction
	StmtCopy
	StmtOther
)

func (t StatementType) String() string {
	switch t {
	case StmtSelect:
		return "SELECT"
	case StmtInsert:
		return "INSERT"
	case StmtUpdate:
		return "UPDATE"
	case StmtDelete:
		return "DELETE"
	case StmtCreateIndex:
		return "CREATE INDEX"
	case StmtDDL:
		return "DDL"
	case StmtGrant:
		return "GRANT/REVOKE"
	case StmtTransaction:
		return "TRANSACTION"
	case StmtCopy:
		return "COPY"
	default:
		return "OTHER"
	}
}

// Result is the outcome of validating one candidate query.
type Result struct {
	Valid    bool
	Reason   string
	Type     StatementType
	Tables   []string
	Warnings []string

	// Tree is the parse tree, kept so later stages can reuse it
	// without reparsing. Nil when parsing failed.
	Tree *pg_query.ParseResult
}

// Validate parses and classifies the query. Only a single SELECT
// (including WITH ... SELECT) passes; everything else is rejected with a
// reason naming the offending operation. On rejection the returned error
// is a *domain.ValidationError and the Result still carries the reason.
func Validate(sql string) (*Result, error) {
	if strings.TrimSpace(sql) == "" {
		return reject(nil, StmtOther, "query is empty")
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return reject(nil, StmtOther, "syntax error: %s", parserMessage(err))
	}
	if len(tree.Stmts) == 0 {
		return reject(tree, StmtOther, "query is empty")
	}
	if len(tree.Stmts) > 1 {
		// Multi-statement input is how piggy-backed injection arrives
		// ("SELECT 1; DROP TABLE foo").
		return reject(tree, StmtOther, "multiple statements are not allowed")
	}

	st := classify(tree.Stmts[0].Stmt)
	if st != StmtSelect {
		return reject(tree, st, "%s statements are not allowed; only SELECT queries can be optimized", st)
	}

	if name, found := containsForbiddenFunction(tree); found {
		return reject(tree, st, "prohibited function: %s", name)
	}

	return &Result{
		Valid:    true,
		Type:     StmtSelect,
		Tables:   collectTables(tree),
		Warnings: collectWarnings(tree),
		Tree:     tree,
	}, nil
}

// ExtractTables parses a SQL query and returns the deduplicated list of
// base tables referenced in FROM clauses, JOINs, CTE bodies, and
// subqueries. CTE names themselves are excluded.
func ExtractTables(sql string) ([]string, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse SQL: %w", err)
	}
	return collectTables(tree), nil
}

// Classify parses the SQL and returns the statement type. It rejects
// multi-statement input.
func Classify(sql string) (StatementType, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return StmtOther, fmt.Errorf("parse SQL: %w", err)
	}
	if len(tree.Stmts) == 0 {
		return StmtOther, fmt.Errorf("empty statement")
	}
	if len(tree.Stmts) > 1 {
		return StmtOther, fmt.Errorf("multiple statements are not allowed")
	}
	return classify(tree.Stmts[0].Stmt), nil
}

// QuoteIdentifier unconditionally quotes a SQL identifier using double
// quotes. Internal double quotes are escaped by doubling them ("" → ").
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func reject(tree *pg_query.ParseResult, st StatementType, format string, args ...interface{}) (*Result, error) {
	reason := fmt.Sprintf(format, args...)
	return &Result{Valid: false, Reason: reason, Type: st, Tree: tree}, domain.ErrValidation("%s", reason)
}

// parserMessage strips the library prefix from a parse error so callers
// see only the PostgreSQL message.
func parserMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && strings.HasPrefix(msg, "error parsing") {
		return msg[i+2:]
	}
	return msg
}

func classify(node *pg_query.Node) StatementType {
	if node == nil {
		return StmtOther
	}
	switch {
	case node.GetSelectStmt() != nil:
		return StmtSelect
	case node.GetInsertStmt() != nil:
		return StmtInsert
	case node.GetUpdateStmt() != nil:
		return StmtUpdate
	case node.GetDeleteStmt() != nil:
		return StmtDelete
	case node.GetIndexStmt() != nil:
		return StmtCreateIndex
	case node.GetGrantStmt() != nil || node.GetGrantRoleStmt() != nil:
		return StmtGrant
	case node.GetTransactionStmt() != nil:
		return StmtTransaction
	case node.GetCopyStmt() != nil:
		return StmtCopy
	case node.GetCreateStmt() != nil,
		node.GetCreateTableAsStmt() != nil,
		node.GetCreateSchemaStmt() != nil,
		node.GetCreateSeqStmt() != nil,
		node.GetCreateFunctionStmt() != nil,
		node.GetCreatedbStmt() != nil,
		node.GetViewStmt() != nil,
		node.GetDropStmt() != nil,
		node.GetTruncateStmt() != nil,
		node.GetAlterTableStmt() != nil,
		node.GetRenameStmt() != nil,
		node.GetCommentStmt() != nil,
		node.GetVacuumStmt() != nil,
		node.GetClusterStmt() != nil,
		node.GetReindexStmt() != nil:
		return StmtDDL
	default:
		return StmtOther
	}
}

// forbiddenFunctions is the blocklist of functions that can read the
// filesystem, stall the server, or escape to other databases. A query
// calling any of these is rejected outright.
var forbiddenFunctions = map[string]bool{
	"pg_read_file":         true,
	"pg_read_binary_file":  true,
	"pg_ls_dir":            true,
	"pg_stat_file":         true,
	"pg_sleep":             true,
	"pg_sleep_for":         true,
	"pg_sleep_until":       true,
	"pg_terminate_backend": true,
	"pg_cancel_backend":    true,
	"pg_reload_conf":       true,
	"pg_rotate_logfile":    true,
	"lo_import":            true,
	"lo_export":            true,
	"dblink":               true,
	"dblink_exec":          true,
	"dblink_connect":       true,
}

func containsForbiddenFunction(tree *pg_query.ParseResult) (string, bool) {
	var found string
	Walk(tree, func(n interface{}) bool {
		fc, ok := n.(*pg_query.FuncCall)
		if !ok {
			return true
		}
		name := funcName(fc)
		if forbiddenFunctions[name] {
			found = name
			return false
		}
		return true
	})
	return found, found != ""
}

// funcName returns the unqualified lowercase function name of a call.
func funcName(fc *pg_query.FuncCall) string {
	if len(fc.Funcname) == 0 {
		return ""
	}
	last := fc.Funcname[len(fc.Funcname)-1]
	if s := last.GetString_(); s != nil {
		return strings.ToLower(s.Sval)
	}
	return ""
}

// collectTables walks the parse tree twice: once to learn CTE names,
// once to gather range variables. An unqualified relation whose name
// matches a CTE is the CTE reference, not a base table, and is skipped
// (same shadowing rule PostgreSQL applies).
func collectTables(tree *pg_query.ParseResult) []string {
	cteNames := map[string]bool{}
	Walk(tree, func(n interface{}) bool {
		if cte, ok := n.(*pg_query.CommonTableExpr); ok {
			cteNames[cte.Ctename] = true
		}
		return true
	})

	seen := map[string]bool{}
	var tables []string
	Walk(tree, func(n interface{}) bool {
		rv, ok := n.(*pg_query.RangeVar)
		if !ok {
			return true
		}
		name := rangeVarName(rv)
		if name == "" {
			return true
		}
		if rv.Schemaname == "" && cteNames[rv.Relname] {
			return true
		}
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
		return true
	})
	return tables
}

// rangeVarName assembles the qualified relation name as written.
func rangeVarName(rv *pg_query.RangeVar) string {
	parts := make([]string, 0, 3)
	if rv.Catalogname != "" {
		parts = append(parts, rv.Catalogname)
	}
	if rv.Schemaname != "" {
		parts = append(parts, rv.Schemaname)
	}
	if rv.Relname != "" {
		parts = append(parts, rv.Relname)
	}
	return strings.Join(parts, ".")
}
