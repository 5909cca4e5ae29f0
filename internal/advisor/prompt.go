package advisor

import (
	"fmt"
	"strings"

	"pg-advisor/internal/domain"
)

// systemPrompt establishes the role for every provider call.
const systemPrompt = "You are a PostgreSQL performance optimization expert. Always respond with valid JSON only."

// maxPlanChars caps how much of the plan rendering goes into a prompt.
const maxPlanChars = 4000

func recommendPrompt(req RecommendRequest) string {
	var b strings.Builder

	b.WriteString("Analyze the following SQL query and its execution plan, then provide exactly 3 different optimization recommendations.\n\n")

	b.WriteString("## Original Query:\n```sql\n")
	b.WriteString(req.Query)
	b.WriteString("\n```\n\n")

	b.WriteString("## Current Execution Plan:\n```\n")
	b.WriteString(truncate(req.PlanText, maxPlanChars))
	b.WriteString("\n```\n\n")

	fmt.Fprintf(&b, "## Execution Time: %.2fms\n\n", req.ExecutionTime)

	b.WriteString("## Current Issues Detected:\n")
	if len(req.Issues) == 0 {
		b.WriteString("No specific issues detected\n")
	}
	for _, issue := range req.Issues {
		fmt.Fprintf(&b, "- [%s] %s", issue.Severity, issue.Detail)
		if issue.Suggestion != "" {
			fmt.Fprintf(&b, " (%s)", issue.Suggestion)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(req.Tables) > 0 {
		b.WriteString("## Table Metadata:\n")
		for _, t := range req.Tables {
			writeTableMetadata(&b, t)
		}
		b.WriteString("\n")
	}

	b.WriteString(`---

Provide exactly 3 optimization recommendations with different approaches. Each recommendation should be practical and testable.

Return your response as a valid JSON array with exactly 3 objects. Each object must have:
- "type": one of "index", "rewrite", "config", or "schema"
- "description": clear explanation of what this optimization does and why it helps
- "optimized_query": the rewritten query (can be same as original if only index changes)
- "suggested_indexes": array of CREATE INDEX statements (empty array if not applicable)
- "expected_improvement": "high", "medium", or "low"
- "explanation": technical explanation of why this helps

IMPORTANT: Return ONLY the JSON array, no additional text or markdown formatting.
`)

	return b.String()
}

func refinePrompt(req RefineRequest) string {
	var b strings.Builder

	b.WriteString("A previous optimization attempt for the query below did not meet its goals. Propose one improved follow-up.\n\n")

	b.WriteString("## Original Query:\n```sql\n")
	b.WriteString(req.Query)
	b.WriteString("\n```\n\n")

	b.WriteString("## Previous Attempt:\n")
	fmt.Fprintf(&b, "- type: %s\n", req.Previous.Type)
	fmt.Fprintf(&b, "- description: %s\n", req.Previous.Description)
	if req.Previous.OptimizedQuery != "" {
		fmt.Fprintf(&b, "- optimized query: %s\n", req.Previous.OptimizedQuery)
	}
	b.WriteString("\n")

	b.WriteString("## Indexes Already Applied:\n")
	if len(req.AppliedIndexes) == 0 {
		b.WriteString("none\n")
	}
	for _, idx := range req.AppliedIndexes {
		fmt.Fprintf(&b, "- %s\n", idx)
	}
	b.WriteString("\n")

	b.WriteString("## Plan After The Attempt:\n```\n")
	b.WriteString(truncate(req.SandboxPlan, maxPlanChars))
	b.WriteString("\n```\n\n")

	fmt.Fprintf(&b, "## Result: %.1f%% improvement so far", req.Improvement)
	if req.SeqScanRemains {
		b.WriteString("; the plan still contains a sequential scan that must be eliminated")
	}
	b.WriteString(".\n\n")

	b.WriteString(`---

Return a single JSON object with:
- "optimized_query": the improved query
- "suggested_indexes": array of additional CREATE INDEX statements (empty array if not applicable)
- "explanation": why this follow-up should do better

IMPORTANT: Return ONLY the JSON object, no additional text or markdown formatting.
`)

	return b.String()
}

func writeTableMetadata(b *strings.Builder, t domain.TableInfo) {
	fmt.Fprintf(b, "### %s", t.QualifiedName())
	if t.EstimatedRows > 0 {
		fmt.Fprintf(b, " (~%d rows)", t.EstimatedRows)
	}
	b.WriteString("\n")

	if t.LookupError != "" {
		fmt.Fprintf(b, "metadata unavailable: %s\n", t.LookupError)
		return
	}

	for _, c := range t.Columns {
		fmt.Fprintf(b, "- %s %s", c.Name, c.DataType)
		if c.Nullable {
			b.WriteString(" null")
		}
		b.WriteString("\n")
	}
	for _, idx := range t.Indexes {
		fmt.Fprintf(b, "- index: %s\n", idx.Definition)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
