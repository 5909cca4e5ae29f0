package domain

// IssueKind classifies a performance problem found in an execution plan.
type IssueKind string

const (
	IssueSeqScan              IssueKind = "seq_scan"
	IssueHighCostNode         IssueKind = "high_cost_node"
	IssueRowEstimateMismatch  IssueKind = "row_estimate_mismatch"
	IssueExternalSort         IssueKind = "external_sort"
	IssueNestedLoopLargeInput IssueKind = "nested_loop_large_input"
	IssueLowBufferHits        IssueKind = "low_buffer_hits"
)

// Severity orders issues by how strongly they indicate a problem.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the sort weight of a severity; higher sorts first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Issue is a single finding from plan analysis.
type Issue struct {
	Kind       IssueKind `json:"kind"`
	Severity   Severity  `json:"severity"`
	Relation   string    `json:"relation,omitempty"`
	NodeType   string    `json:"node_type,omitempty"`
	Detail     string    `json:"detail"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// ColumnInfo describes one column of an analyzed table.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// IndexInfo describes one existing index on an analyzed table.
type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// TableInfo is the catalog metadata gathered for a table referenced by
// the query under analysis. Partial when individual lookups failed.
type TableInfo struct {
	Schema        string       `json:"schema"`
	Name          string       `json:"name"`
	Columns       []ColumnInfo `json:"columns,omitempty"`
	Indexes       []IndexInfo  `json:"indexes,omitempty"`
	EstimatedRows int64        `json:"estimated_rows"`
	LookupError   string       `json:"lookup_error,omitempty"`
}

// QualifiedName returns schema.name, or just the name when the schema
// is empty or public.
func (t TableInfo) QualifiedName() string {
	if t.Schema == "" || t.Schema == "public" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
