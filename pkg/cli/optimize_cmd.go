package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pg-advisor/pkg/cli/client"
)

// optimizeJob is the YAML job-file form of an optimization request.
type optimizeJob struct {
	SQL        string `yaml:"sql"`
	Connection string `yaml:"connection,omitempty"`
	Wait       bool   `yaml:"wait,omitempty"`
}

type optimizeAttempt struct {
	Round             int      `json:"round"`
	Rank              int      `json:"rank"`
	Provider          string   `json:"provider"`
	Type              string   `json:"type"`
	RewrittenQuery    string   `json:"rewritten_query,omitempty"`
	IndexesApplied    []string `json:"indexes_applied,omitempty"`
	SandboxTimeMs     float64  `json:"sandbox_time_ms"`
	ImprovementPct    float64  `json:"improvement_pct"`
	SeqScanEliminated bool     `json:"seq_scan_eliminated"`
	Err               string   `json:"error,omitempty"`
}

type optimizeConclusion struct {
	SessionID      string            `json:"session_id"`
	Status         string            `json:"status"`
	Rounds         int               `json:"rounds"`
	Best           *optimizeAttempt  `json:"best,omitempty"`
	Ranked         []optimizeAttempt `json:"ranked,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	BaselineTimeMs float64           `json:"baseline_time_ms,omitempty"`
}

func newOptimizeCmd(api *client.Client) *cobra.Command {
	var (
		file       string
		jobFile    string
		connection string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "optimize [sql]",
		Short: "Run an optimization session for a query",
		Long: `Start an optimization session: the query is measured, advisors propose
rewrites and indexes, and each candidate is benchmarked in a sandbox
against the baseline. Without --wait the session runs in the background
and the session id is printed.`,
		Example: `  # Fire and forget; poll with 'pgadvisor sessions get <id>'
  pgadvisor optimize "SELECT * FROM orders WHERE status = 'open'"

  # Wait for the conclusion
  pgadvisor optimize "SELECT ..." --connection replica --wait

  # Run a job file
  pgadvisor optimize --job nightly.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := optimizeJob{Connection: connection, Wait: wait}

			if jobFile != "" {
				data, err := os.ReadFile(jobFile) //nolint:gosec // path comes from the user's own flag
				if err != nil {
					return fmt.Errorf("read %s: %w", jobFile, err)
				}
				if err := yaml.Unmarshal(data, &job); err != nil {
					return fmt.Errorf("parse %s: %w", jobFile, err)
				}
				// Flags still win over the job file.
				if cmd.Flags().Changed("connection") {
					job.Connection = connection
				}
				if cmd.Flags().Changed("wait") {
					job.Wait = wait
				}
			}
			if job.SQL == "" {
				sql, err := readSQL(args, file)
				if err != nil {
					return err
				}
				job.SQL = sql
			}

			body := map[string]any{"sql": job.SQL, "wait": job.Wait}
			if job.Connection != "" {
				body["connection"] = job.Connection
			}

			if !job.Wait {
				var accepted struct {
					SessionID string `json:"session_id"`
				}
				if err := api.Post("/optimize", body, &accepted); err != nil {
					return err
				}
				if isQuiet(cmd) {
					fmt.Fprintln(os.Stdout, accepted.SessionID)
					return nil
				}
				if getOutputFormat(cmd) == "json" {
					return client.PrintJSON(os.Stdout, accepted)
				}
				fmt.Fprintf(os.Stdout, "session %s started; follow it with: pgadvisor sessions get %s\n",
					accepted.SessionID, accepted.SessionID)
				return nil
			}

			var conclusion optimizeConclusion
			if err := api.Post("/optimize", body, &conclusion); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, conclusion)
			}
			printConclusion(&conclusion)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file")
	cmd.Flags().StringVar(&jobFile, "job", "", "Read the whole request from a YAML job file")
	cmd.Flags().StringVarP(&connection, "connection", "c", "", "Stored connection to optimize against")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the session concludes")

	return cmd
}

func printConclusion(c *optimizeConclusion) {
	fmt.Fprintf(os.Stdout, "session %s: %s after %d round(s)\n", c.SessionID, c.Status, c.Rounds)
	if c.FailureReason != "" {
		fmt.Fprintf(os.Stdout, "reason: %s\n", c.FailureReason)
	}
	if c.Best != nil {
		fmt.Fprintf(os.Stdout, "baseline %s -> best %s (%s faster, %s from %s)\n",
			formatMs(c.BaselineTimeMs), formatMs(c.Best.SandboxTimeMs), formatPct(c.Best.ImprovementPct),
			c.Best.Type, c.Best.Provider)
		if c.Best.RewrittenQuery != "" {
			fmt.Fprintf(os.Stdout, "query:\n  %s\n", c.Best.RewrittenQuery)
		}
		for _, idx := range c.Best.IndexesApplied {
			fmt.Fprintf(os.Stdout, "index: %s\n", idx)
		}
	}
	if len(c.Ranked) > 0 {
		rows := make([][]string, 0, len(c.Ranked))
		for _, a := range c.Ranked {
			rows = append(rows, []string{
				fmt.Sprintf("%d", a.Round),
				fmt.Sprintf("%d", a.Rank),
				a.Provider,
				a.Type,
				formatMs(a.SandboxTimeMs),
				formatPct(a.ImprovementPct),
				a.Err,
			})
		}
		client.PrintTable(os.Stdout, []string{"round", "rank", "provider", "type", "time", "improvement", "error"}, rows)
	}
	for _, w := range c.Warnings {
		fmt.Fprintf(os.Stdout, "warning: %s\n", w)
	}
}
