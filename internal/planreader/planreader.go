// Package planreader models the JSON output of PostgreSQL's
// EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) and provides traversal and
// rendering over the plan tree.
package planreader

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlanNode is one node of an execution plan tree. Field tags mirror the
// keys PostgreSQL emits, spaces included.
type PlanNode struct {
	NodeType           string `json:"Node Type"`
	ParentRelationship string `json:"Parent Relationship,omitempty"`
	Strategy           string `json:"Strategy,omitempty"`
	PartialMode        string `json:"Partial Mode,omitempty"`

	// Estimates vs actuals
	StartupCost       float64 `json:"Startup Cost"`
	TotalCost         float64 `json:"Total Cost"`
	PlanRows          int64   `json:"Plan Rows"`
	PlanWidth         int     `json:"Plan Width"`
	ActualStartupTime float64 `json:"Actual Startup Time,omitempty"`
	ActualTotalTime   float64 `json:"Actual Total Time,omitempty"`
	ActualRows        int64   `json:"Actual Rows,omitempty"`
	ActualLoops       int64   `json:"Actual Loops,omitempty"`

	// Relation/index info
	Schema        string `json:"Schema,omitempty"`
	RelationName  string `json:"Relation Name,omitempty"`
	Alias         string `json:"Alias,omitempty"`
	IndexName     string `json:"Index Name,omitempty"`
	ScanDirection string `json:"Scan Direction,omitempty"`

	// Conditions
	IndexCond           string `json:"Index Cond,omitempty"`
	Filter              string `json:"Filter,omitempty"`
	RowsRemovedByFilter int64  `json:"Rows Removed by Filter,omitempty"`

	// Join info
	JoinType   string `json:"Join Type,omitempty"`
	JoinFilter string `json:"Join Filter,omitempty"`
	HashCond   string `json:"Hash Cond,omitempty"`
	MergeCond  string `json:"Merge Cond,omitempty"`

	// Sort
	SortKey       []string `json:"Sort Key,omitempty"`
	SortMethod    string   `json:"Sort Method,omitempty"`
	SortSpaceUsed int64    `json:"Sort Space Used,omitempty"`
	SortSpaceType string   `json:"Sort Space Type,omitempty"`

	// Buffers
	SharedHitBlocks  int64 `json:"Shared Hit Blocks,omitempty"`
	SharedReadBlocks int64 `json:"Shared Read Blocks,omitempty"`
	TempReadBlocks   int64 `json:"Temp Read Blocks,omitempty"`
	TempWrittenBlks  int64 `json:"Temp Written Blocks,omitempty"`

	// Parallel query
	WorkersPlanned  int `json:"Workers Planned,omitempty"`
	WorkersLaunched int `json:"Workers Launched,omitempty"`

	CTEName     string `json:"CTE Name,omitempty"`
	SubplanName string `json:"Subplan Name,omitempty"`

	GroupKey []string `json:"Group Key,omitempty"`

	Plans []PlanNode `json:"Plans,omitempty"`
}

// Explain is the top-level EXPLAIN JSON document for one statement.
type Explain struct {
	Plan          PlanNode `json:"Plan"`
	PlanningTime  float64  `json:"Planning Time,omitempty"`
	ExecutionTime float64  `json:"Execution Time,omitempty"`
	Triggers      []any    `json:"Triggers,omitempty"`
}

// Parse decodes the raw EXPLAIN (FORMAT JSON) output. PostgreSQL wraps
// the document in a one-element array; a bare object is accepted too.
func Parse(raw []byte) (*Explain, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("empty explain output")
	}

	if strings.HasPrefix(trimmed, "[") {
		var docs []Explain
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("decode explain output: %w", err)
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("explain output contains no plan")
		}
		return &docs[0], nil
	}

	var doc Explain
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode explain output: %w", err)
	}
	if doc.Plan.NodeType == "" {
		return nil, fmt.Errorf("explain output contains no plan")
	}
	return &doc, nil
}

// Walk visits the plan tree pre-order. Returning false from fn stops
// descent into that node's children but not the rest of the tree.
func (e *Explain) Walk(fn func(n *PlanNode) bool) {
	walk(&e.Plan, fn)
}

func walk(n *PlanNode, fn func(n *PlanNode) bool) {
	if !fn(n) {
		return
	}
	for i := range n.Plans {
		walk(&n.Plans[i], fn)
	}
}

// Rows returns the best row count available for the node: actual rows
// when the plan was executed, planner estimate otherwise.
func (n *PlanNode) Rows() int64 {
	if n.ActualLoops > 0 {
		return n.ActualRows
	}
	return n.PlanRows
}

// Executed reports whether the node carries ANALYZE timings.
func (n *PlanNode) Executed() bool { return n.ActualLoops > 0 }

// SelfCost is the node's total cost minus its children's, i.e. the cost
// attributable to the node itself.
func (n *PlanNode) SelfCost() float64 {
	cost := n.TotalCost
	for i := range n.Plans {
		cost -= n.Plans[i].TotalCost
	}
	if cost < 0 {
		return 0
	}
	return cost
}

// HasSeqScan reports whether any node in the tree is a sequential scan.
func (e *Explain) HasSeqScan() bool {
	found := false
	e.Walk(func(n *PlanNode) bool {
		if n.NodeType == "Seq Scan" {
			found = true
			return false
		}
		return true
	})
	return found
}

// Format renders the plan tree as indented text for display, one node
// per line with relation, cost, row, and timing details.
func Format(e *Explain) string {
	var b strings.Builder
	formatNode(&b, &e.Plan, 0)
	if e.PlanningTime > 0 {
		fmt.Fprintf(&b, "Planning Time: %.3f ms\n", e.PlanningTime)
	}
	if e.ExecutionTime > 0 {
		fmt.Fprintf(&b, "Execution Time: %.3f ms\n", e.ExecutionTime)
	}
	return b.String()
}

func formatNode(b *strings.Builder, n *PlanNode, depth int) {
	indent := strings.Repeat("  ", depth)
	if depth > 0 {
		indent += "-> "
	}

	b.WriteString(indent)
	b.WriteString(n.NodeType)
	if n.RelationName != "" {
		fmt.Fprintf(b, " on %s", n.RelationName)
		if n.Alias != "" && n.Alias != n.RelationName {
			fmt.Fprintf(b, " %s", n.Alias)
		}
	}
	if n.IndexName != "" {
		fmt.Fprintf(b, " using %s", n.IndexName)
	}
	fmt.Fprintf(b, "  (cost=%.2f..%.2f rows=%d width=%d)", n.StartupCost, n.TotalCost, n.PlanRows, n.PlanWidth)
	if n.Executed() {
		fmt.Fprintf(b, " (actual time=%.3f..%.3f rows=%d loops=%d)", n.ActualStartupTime, n.ActualTotalTime, n.ActualRows, n.ActualLoops)
	}
	b.WriteByte('\n')

	detail := func(label, value string) {
		if value != "" {
			fmt.Fprintf(b, "%s     %s: %s\n", strings.Repeat("  ", depth), label, value)
		}
	}
	detail("Index Cond", n.IndexCond)
	detail("Filter", n.Filter)
	detail("Hash Cond", n.HashCond)
	detail("Merge Cond", n.MergeCond)
	if len(n.SortKey) > 0 {
		detail("Sort Key", strings.Join(n.SortKey, ", "))
	}
	if n.SortMethod != "" {
		detail("Sort Method", fmt.Sprintf("%s (%s: %dkB)", n.SortMethod, n.SortSpaceType, n.SortSpaceUsed))
	}

	for i := range n.Plans {
		formatNode(b, &n.Plans[i], depth+1)
	}
}
