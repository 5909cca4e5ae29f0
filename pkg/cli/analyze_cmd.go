package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pg-advisor/pkg/cli/client"
)

type analyzeIssue struct {
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Relation   string `json:"relation,omitempty"`
	NodeType   string `json:"node_type,omitempty"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
}

type analyzeReport struct {
	PlanText      string         `json:"plan_text"`
	Issues        []analyzeIssue `json:"issues"`
	HasSeqScan    bool           `json:"has_seq_scan"`
	ExecutionTime float64        `json:"execution_time_ms"`
	PlanningTime  float64        `json:"planning_time_ms"`
}

func newAnalyzeCmd(api *client.Client) *cobra.Command {
	var (
		file       string
		connection string
		showPlan   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [sql]",
		Short: "Measure a query's baseline and surface plan issues",
		Long:  "Run EXPLAIN ANALYZE against the target database and report execution time, sequential scans, and other plan issues.",
		Example: `  # Analyze against the default target
  pgadvisor analyze "SELECT * FROM orders WHERE status = 'open'"

  # Analyze against a stored connection, with the raw plan
  pgadvisor analyze "SELECT ..." --connection replica --plan`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(args, file)
			if err != nil {
				return err
			}

			body := map[string]string{"sql": sql}
			if connection != "" {
				body["connection"] = connection
			}

			var report analyzeReport
			if err := api.Post("/analyze", body, &report); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, report)
			}

			fmt.Fprintf(os.Stdout, "execution: %s  planning: %s  seq scan: %v\n",
				formatMs(report.ExecutionTime), formatMs(report.PlanningTime), report.HasSeqScan)
			if len(report.Issues) > 0 {
				rows := make([][]string, 0, len(report.Issues))
				for _, issue := range report.Issues {
					rows = append(rows, []string{issue.Severity, issue.Kind, issue.Relation, issue.Detail})
				}
				client.PrintTable(os.Stdout, []string{"severity", "kind", "relation", "detail"}, rows)
			}
			if showPlan {
				fmt.Fprintln(os.Stdout, report.PlanText)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file")
	cmd.Flags().StringVarP(&connection, "connection", "c", "", "Stored connection to analyze against")
	cmd.Flags().BoolVar(&showPlan, "plan", false, "Print the raw EXPLAIN output")

	return cmd
}
