package analyzer

import (
	"fmt"
	"strings"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/planreader"
)

func classifySeqScan(n *planreader.PlanNode) (domain.Issue, bool) {
	if n.NodeType != "Seq Scan" || n.Rows() <= seqScanRowThreshold {
		return domain.Issue{}, false
	}

	severity := domain.SeverityWarning
	if n.Rows() > seqScanCriticalThreshold {
		severity = domain.SeverityCritical
	}

	suggestion := fmt.Sprintf("consider an index on %s", n.RelationName)
	if n.Filter != "" {
		suggestion = fmt.Sprintf("consider an index on %s covering the filter %s", n.RelationName, n.Filter)
	}

	return domain.Issue{
		Kind:       domain.IssueSeqScan,
		Severity:   severity,
		Relation:   n.RelationName,
		NodeType:   n.NodeType,
		Detail:     fmt.Sprintf("sequential scan over %d rows", n.Rows()),
		Suggestion: suggestion,
	}, true
}

func classifyHighCost(n *planreader.PlanNode) (domain.Issue, bool) {
	self := n.SelfCost()
	if self <= highCostThreshold {
		return domain.Issue{}, false
	}
	return domain.Issue{
		Kind:       domain.IssueHighCostNode,
		Severity:   domain.SeverityWarning,
		Relation:   n.RelationName,
		NodeType:   n.NodeType,
		Detail:     fmt.Sprintf("%s contributes %.1f cost units on its own", n.NodeType, self),
		Suggestion: "this node dominates the plan cost; check whether its input can be reduced",
	}, true
}

func classifyEstimateMismatch(n *planreader.PlanNode) (domain.Issue, bool) {
	if !n.Executed() || n.ActualRows <= 0 || n.PlanRows <= 0 {
		return domain.Issue{}, false
	}

	actual, planned := float64(n.ActualRows), float64(n.PlanRows)
	ratio := actual / planned
	if ratio < 1 {
		ratio = planned / actual
	}
	if ratio < estimateMismatchFactor {
		return domain.Issue{}, false
	}

	return domain.Issue{
		Kind:       domain.IssueRowEstimateMismatch,
		Severity:   domain.SeverityWarning,
		Relation:   n.RelationName,
		NodeType:   n.NodeType,
		Detail:     fmt.Sprintf("planner expected %d rows but %s produced %d", n.PlanRows, n.NodeType, n.ActualRows),
		Suggestion: "statistics look stale; run ANALYZE on the involved tables",
	}, true
}

func classifyExternalSort(n *planreader.PlanNode) (domain.Issue, bool) {
	if !strings.Contains(strings.ToLower(n.SortMethod), "external") {
		return domain.Issue{}, false
	}
	return domain.Issue{
		Kind:       domain.IssueExternalSort,
		Severity:   domain.SeverityWarning,
		NodeType:   n.NodeType,
		Detail:     fmt.Sprintf("sort spilled to disk (%s)", n.SortMethod),
		Suggestion: "raise work_mem or add an index matching the sort keys",
	}, true
}

// classifyTopNestedLoop flags a nested loop at the top of the plan
// whose inner side feeds it a large row count. Only the root node and
// the immediate child of a root Gather are considered; nested loops
// deeper in the tree over small inputs are normal.
func classifyTopNestedLoop(e *planreader.Explain) (domain.Issue, bool) {
	n := &e.Plan
	if strings.HasPrefix(n.NodeType, "Gather") && len(n.Plans) > 0 {
		n = &n.Plans[0]
	}
	if n.NodeType != "Nested Loop" || len(n.Plans) < 2 {
		return domain.Issue{}, false
	}

	inner := &n.Plans[1]
	if inner.Rows() <= nestedLoopInnerThreshold {
		return domain.Issue{}, false
	}

	return domain.Issue{
		Kind:       domain.IssueNestedLoopLargeInput,
		Severity:   domain.SeverityCritical,
		Relation:   inner.RelationName,
		NodeType:   n.NodeType,
		Detail:     fmt.Sprintf("nested loop joins against %d inner rows", inner.Rows()),
		Suggestion: "a hash or merge join would likely be cheaper; check join key indexes and statistics",
	}, true
}

// classifyColdCache reports when the query reads far more blocks from
// disk than it finds in shared buffers.
func classifyColdCache(e *planreader.Explain) (domain.Issue, bool) {
	var hits, reads int64
	e.Walk(func(n *planreader.PlanNode) bool {
		hits += n.SharedHitBlocks
		reads += n.SharedReadBlocks
		return true
	})

	if reads <= hits || reads <= coldCacheReadThreshold {
		return domain.Issue{}, false
	}

	return domain.Issue{
		Kind:       domain.IssueLowBufferHits,
		Severity:   domain.SeverityInfo,
		Detail:     fmt.Sprintf("read %d blocks from disk against %d buffer hits", reads, hits),
		Suggestion: "the working set does not fit in shared buffers; an index could shrink the data touched",
	}, true
}
