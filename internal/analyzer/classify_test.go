package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/planreader"
)

func seqScan(relation string, rows int64) planreader.PlanNode {
	return planreader.PlanNode{
		NodeType:     "Seq Scan",
		RelationName: relation,
		TotalCost:    100,
		PlanRows:     rows,
		ActualRows:   rows,
		ActualLoops:  1,
	}
}

func explainWith(root planreader.PlanNode) *planreader.Explain {
	return &planreader.Explain{Plan: root}
}

func TestClassifyIssues_SeqScanThresholds(t *testing.T) {
	tests := []struct {
		name     string
		rows     int64
		want     bool
		severity domain.Severity
	}{
		{name: "small scan ignored", rows: 500, want: false},
		{name: "medium scan warns", rows: 5000, want: true, severity: domain.SeverityWarning},
		{name: "huge scan critical", rows: 250000, want: true, severity: domain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := ClassifyIssues(explainWith(seqScan("orders", tt.rows)))
			issue, ok := findIssue(issues, domain.IssueSeqScan)
			require.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.severity, issue.Severity)
				assert.Equal(t, "orders", issue.Relation)
			}
		})
	}
}

func TestClassifyIssues_SeqScanSuggestionMentionsFilter(t *testing.T) {
	node := seqScan("orders", 5000)
	node.Filter = "(status = 'open'::text)"

	issues := ClassifyIssues(explainWith(node))
	issue, ok := findIssue(issues, domain.IssueSeqScan)
	require.True(t, ok)
	assert.Contains(t, issue.Suggestion, "status = 'open'")
}

func TestClassifyIssues_SeqScanUsesEstimateWhenNotExecuted(t *testing.T) {
	node := planreader.PlanNode{NodeType: "Seq Scan", RelationName: "orders", PlanRows: 40000}

	issues := ClassifyIssues(explainWith(node))
	_, ok := findIssue(issues, domain.IssueSeqScan)
	assert.True(t, ok)
}

func TestClassifyIssues_HighCostNode(t *testing.T) {
	root := planreader.PlanNode{
		NodeType:  "Hash Join",
		TotalCost: 5000,
		Plans: []planreader.PlanNode{
			{NodeType: "Index Scan", TotalCost: 200},
			{NodeType: "Hash", TotalCost: 300},
		},
	}

	issues := ClassifyIssues(explainWith(root))
	issue, ok := findIssue(issues, domain.IssueHighCostNode)
	require.True(t, ok)
	assert.Equal(t, "Hash Join", issue.NodeType)
	assert.Contains(t, issue.Detail, "4500.0")
}

func TestClassifyIssues_HighCostChildrenAbsorbCost(t *testing.T) {
	// The root's own contribution is small; its expensive child is an
	// index scan under threshold on its own terms as well.
	root := planreader.PlanNode{
		NodeType:  "Limit",
		TotalCost: 1050,
		Plans:     []planreader.PlanNode{{NodeType: "Index Scan", TotalCost: 1000}},
	}

	issues := ClassifyIssues(explainWith(root))
	_, ok := findIssue(issues, domain.IssueHighCostNode)
	assert.False(t, ok)
}

func TestClassifyIssues_RowEstimateMismatch(t *testing.T) {
	node := planreader.PlanNode{
		NodeType:     "Index Scan",
		RelationName: "events",
		PlanRows:     100,
		ActualRows:   5000,
		ActualLoops:  1,
	}

	issues := ClassifyIssues(explainWith(node))
	issue, ok := findIssue(issues, domain.IssueRowEstimateMismatch)
	require.True(t, ok)
	assert.Contains(t, issue.Suggestion, "ANALYZE")
}

func TestClassifyIssues_RowEstimateMismatchBothDirections(t *testing.T) {
	node := planreader.PlanNode{
		NodeType:    "Index Scan",
		PlanRows:    5000,
		ActualRows:  100,
		ActualLoops: 1,
	}

	issues := ClassifyIssues(explainWith(node))
	_, ok := findIssue(issues, domain.IssueRowEstimateMismatch)
	assert.True(t, ok)
}

func TestClassifyIssues_RowEstimateCloseEnough(t *testing.T) {
	node := planreader.PlanNode{
		NodeType:    "Index Scan",
		PlanRows:    1000,
		ActualRows:  4000,
		ActualLoops: 1,
	}

	issues := ClassifyIssues(explainWith(node))
	_, ok := findIssue(issues, domain.IssueRowEstimateMismatch)
	assert.False(t, ok)
}

func TestClassifyIssues_RowEstimateRequiresExecution(t *testing.T) {
	node := planreader.PlanNode{NodeType: "Index Scan", PlanRows: 100}

	issues := ClassifyIssues(explainWith(node))
	_, ok := findIssue(issues, domain.IssueRowEstimateMismatch)
	assert.False(t, ok)
}

func TestClassifyIssues_ExternalSort(t *testing.T) {
	root := planreader.PlanNode{
		NodeType:   "Sort",
		SortKey:    []string{"created_at"},
		SortMethod: "external merge",
	}

	issues := ClassifyIssues(explainWith(root))
	issue, ok := findIssue(issues, domain.IssueExternalSort)
	require.True(t, ok)
	assert.Contains(t, issue.Suggestion, "work_mem")
}

func TestClassifyIssues_QuicksortNotFlagged(t *testing.T) {
	root := planreader.PlanNode{NodeType: "Sort", SortMethod: "quicksort"}

	issues := ClassifyIssues(explainWith(root))
	_, ok := findIssue(issues, domain.IssueExternalSort)
	assert.False(t, ok)
}

func TestClassifyIssues_TopNestedLoopLargeInner(t *testing.T) {
	root := planreader.PlanNode{
		NodeType: "Nested Loop",
		Plans: []planreader.PlanNode{
			seqScan("orders", 50),
			seqScan("line_items", 50000),
		},
	}

	issues := ClassifyIssues(explainWith(root))
	issue, ok := findIssue(issues, domain.IssueNestedLoopLargeInput)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityCritical, issue.Severity)
	assert.Equal(t, "line_items", issue.Relation)
}

func TestClassifyIssues_NestedLoopUnderGather(t *testing.T) {
	root := planreader.PlanNode{
		NodeType: "Gather",
		Plans: []planreader.PlanNode{{
			NodeType: "Nested Loop",
			Plans: []planreader.PlanNode{
				seqScan("orders", 50),
				seqScan("line_items", 50000),
			},
		}},
	}

	issues := ClassifyIssues(explainWith(root))
	_, ok := findIssue(issues, domain.IssueNestedLoopLargeInput)
	assert.True(t, ok)
}

func TestClassifyIssues_DeepNestedLoopIgnored(t *testing.T) {
	root := planreader.PlanNode{
		NodeType: "Hash Join",
		Plans: []planreader.PlanNode{
			{
				NodeType: "Nested Loop",
				Plans: []planreader.PlanNode{
					seqScan("a", 10),
					seqScan("b", 50000),
				},
			},
			{NodeType: "Hash"},
		},
	}

	issues := ClassifyIssues(explainWith(root))
	_, ok := findIssue(issues, domain.IssueNestedLoopLargeInput)
	assert.False(t, ok)
}

func TestClassifyIssues_SmallInnerNestedLoopFine(t *testing.T) {
	root := planreader.PlanNode{
		NodeType: "Nested Loop",
		Plans: []planreader.PlanNode{
			seqScan("orders", 50),
			{NodeType: "Index Scan", ActualRows: 1, ActualLoops: 50},
		},
	}

	issues := ClassifyIssues(explainWith(root))
	_, ok := findIssue(issues, domain.IssueNestedLoopLargeInput)
	assert.False(t, ok)
}

func TestClassifyIssues_ColdCache(t *testing.T) {
	root := planreader.PlanNode{
		NodeType:         "Seq Scan",
		SharedHitBlocks:  100,
		SharedReadBlocks: 9000,
	}

	issues := ClassifyIssues(explainWith(root))
	issue, ok := findIssue(issues, domain.IssueLowBufferHits)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityInfo, issue.Severity)
}

func TestClassifyIssues_WarmCacheQuiet(t *testing.T) {
	root := planreader.PlanNode{
		NodeType:         "Seq Scan",
		SharedHitBlocks:  9000,
		SharedReadBlocks: 200,
	}

	issues := ClassifyIssues(explainWith(root))
	_, ok := findIssue(issues, domain.IssueLowBufferHits)
	assert.False(t, ok)
}

func TestClassifyIssues_OrderedBySeverity(t *testing.T) {
	// A critical seq scan plus an info-level cache miss; the critical
	// finding must sort first regardless of discovery order.
	node := seqScan("orders", 500000)
	node.SharedHitBlocks = 10
	node.SharedReadBlocks = 5000

	issues := ClassifyIssues(explainWith(node))
	require.NotEmpty(t, issues)
	assert.Equal(t, domain.SeverityCritical, issues[0].Severity)
	last := issues[len(issues)-1]
	assert.Equal(t, domain.SeverityInfo, last.Severity)
}

func TestClassifyIssues_CleanPlan(t *testing.T) {
	root := planreader.PlanNode{
		NodeType:    "Index Scan",
		IndexName:   "orders_pkey",
		TotalCost:   8.3,
		PlanRows:    1,
		ActualRows:  1,
		ActualLoops: 1,
	}

	issues := ClassifyIssues(explainWith(root))
	assert.Empty(t, issues)
}
