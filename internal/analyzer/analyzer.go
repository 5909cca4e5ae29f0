// Package analyzer measures a query on the target database and turns
// the execution plan into structured findings: classified issues plus
// catalog metadata for every referenced table.
package analyzer

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/pgdb"
	"pg-advisor/internal/planreader"
)

// Classification thresholds.
const (
	seqScanRowThreshold      = 1000
	seqScanCriticalThreshold = 100000
	highCostThreshold        = 1000.0
	estimateMismatchFactor   = 10
	nestedLoopInnerThreshold = 10000
	coldCacheReadThreshold   = 1000
)

// Target is the slice of pgdb.DB the analyzer needs.
type Target interface {
	ExplainAnalyze(ctx context.Context, query string) ([]byte, error)
	TableColumns(ctx context.Context, schema, table string) ([]domain.ColumnInfo, error)
	TableIndexes(ctx context.Context, schema, table string) ([]domain.IndexInfo, error)
	TableRowEstimate(ctx context.Context, schema, table string) (int64, error)
}

// Report is the structured result of analyzing one query.
type Report struct {
	Explain       *planreader.Explain `json:"-"`
	PlanText      string              `json:"plan_text"`
	Issues        []domain.Issue      `json:"issues"`
	Tables        []domain.TableInfo  `json:"tables"`
	HasSeqScan    bool                `json:"has_seq_scan"`
	ExecutionTime float64             `json:"execution_time_ms"`
	PlanningTime  float64             `json:"planning_time_ms"`
}

// Analyzer runs EXPLAIN ANALYZE and classifies the result.
type Analyzer struct {
	target Target
	logger *slog.Logger
}

// New creates an Analyzer bound to a target database.
func New(target Target, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{target: target, logger: logger}
}

// Analyze measures the (already validated) query and gathers table
// metadata. Table lookups degrade to partial entries on failure; only
// the EXPLAIN itself can fail the analysis.
func (a *Analyzer) Analyze(ctx context.Context, sql string, tables []string) (*Report, error) {
	raw, err := a.target.ExplainAnalyze(ctx, sql)
	if err != nil {
		return nil, err
	}

	explain, err := planreader.Parse(raw)
	if err != nil {
		return nil, domain.ErrExecution("parse explain output: %s", err)
	}

	report := &Report{
		Explain:       explain,
		PlanText:      planreader.Format(explain),
		Issues:        ClassifyIssues(explain),
		Tables:        a.gatherTables(ctx, tables),
		HasSeqScan:    explain.HasSeqScan(),
		ExecutionTime: explain.ExecutionTime,
		PlanningTime:  explain.PlanningTime,
	}

	a.logger.Debug("analyzed query",
		"execution_ms", report.ExecutionTime,
		"issues", len(report.Issues),
		"tables", len(report.Tables),
		"seq_scan", report.HasSeqScan)

	return report, nil
}

// gatherTables collects catalog metadata for each table concurrently.
// A failed lookup yields a partial TableInfo carrying the error.
func (a *Analyzer) gatherTables(ctx context.Context, tables []string) []domain.TableInfo {
	infos := make([]domain.TableInfo, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range tables {
		i, name := i, name
		g.Go(func() error {
			infos[i] = a.lookupTable(gctx, name)
			return nil
		})
	}
	_ = g.Wait()

	return infos
}

func (a *Analyzer) lookupTable(ctx context.Context, name string) domain.TableInfo {
	schema, table := pgdb.SplitQualified(name)
	info := domain.TableInfo{Schema: schema, Name: table}

	cols, err := a.target.TableColumns(ctx, schema, table)
	if err != nil {
		a.logger.Warn("table column lookup failed", "table", name, "error", err)
		info.LookupError = err.Error()
		return info
	}
	info.Columns = cols

	if idxs, err := a.target.TableIndexes(ctx, schema, table); err == nil {
		info.Indexes = idxs
	} else {
		a.logger.Warn("table index lookup failed", "table", name, "error", err)
		info.LookupError = err.Error()
	}

	if est, err := a.target.TableRowEstimate(ctx, schema, table); err == nil {
		info.EstimatedRows = est
	} else {
		a.logger.Warn("table row estimate failed", "table", name, "error", err)
		info.LookupError = err.Error()
	}

	return info
}

// ClassifyIssues walks the plan tree and reports everything that looks
// like a performance problem, ordered by severity.
func ClassifyIssues(e *planreader.Explain) []domain.Issue {
	var issues []domain.Issue

	e.Walk(func(n *planreader.PlanNode) bool {
		if issue, ok := classifySeqScan(n); ok {
			issues = append(issues, issue)
		}
		if issue, ok := classifyHighCost(n); ok {
			issues = append(issues, issue)
		}
		if issue, ok := classifyEstimateMismatch(n); ok {
			issues = append(issues, issue)
		}
		if issue, ok := classifyExternalSort(n); ok {
			issues = append(issues, issue)
		}
		return true
	})

	if issue, ok := classifyTopNestedLoop(e); ok {
		issues = append(issues, issue)
	}
	if issue, ok := classifyColdCache(e); ok {
		issues = append(issues, issue)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() > issues[j].Severity.Rank()
	})
	return issues
}
