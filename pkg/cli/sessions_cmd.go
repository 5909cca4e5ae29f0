package cli

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pg-advisor/pkg/cli/client"
)

type sessionView struct {
	ID             string     `json:"id"`
	Connection     string     `json:"connection"`
	Query          string     `json:"query"`
	State          string     `json:"state"`
	Status         string     `json:"status,omitempty"`
	Rounds         int        `json:"rounds"`
	BaselineTimeMs float64    `json:"baseline_time_ms,omitempty"`
	BestTimeMs     float64    `json:"best_time_ms,omitempty"`
	ImprovementPct float64    `json:"improvement_pct,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	ConcludedAt    *time.Time `json:"concluded_at,omitempty"`
}

func newSessionsCmd(api *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect optimization sessions",
	}

	cmd.AddCommand(newSessionsListCmd(api))
	cmd.AddCommand(newSessionsGetCmd(api))
	cmd.AddCommand(newSessionsCancelCmd(api))
	cmd.AddCommand(newSessionsAttemptsCmd(api))
	cmd.AddCommand(newSessionsRecommendationsCmd(api))

	return cmd
}

func newSessionsListCmd(api *client.Client) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List optimization sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			var page struct {
				Data  []sessionView `json:"data"`
				Total int64         `json:"total"`
			}
			if err := api.Get("/sessions", q, &page); err != nil {
				return err
			}

			if isQuiet(cmd) {
				for _, s := range page.Data {
					fmt.Fprintln(os.Stdout, s.ID)
				}
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, page)
			}

			rows := make([][]string, 0, len(page.Data))
			for _, s := range page.Data {
				rows = append(rows, []string{
					s.ID,
					s.Connection,
					s.State,
					s.Status,
					strconv.Itoa(s.Rounds),
					improvementCell(s),
					s.StartedAt.Local().Format(time.RFC3339),
				})
			}
			client.PrintTable(os.Stdout, []string{"id", "connection", "state", "status", "rounds", "improvement", "started"}, rows)
			fmt.Fprintf(os.Stdout, "%d of %d session(s)\n", len(page.Data), page.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	return cmd
}

// improvementCell renders the improvement column; sessions without a
// conclusion have nothing to show yet.
func improvementCell(s sessionView) string {
	if s.ConcludedAt == nil || s.BestTimeMs == 0 {
		return ""
	}
	return formatPct(s.ImprovementPct)
}

func newSessionsGetCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s sessionView
			if err := api.Get("/sessions/"+url.PathEscape(args[0]), nil, &s); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, s)
			}

			fields := map[string]any{
				"id":         s.ID,
				"connection": s.Connection,
				"query":      s.Query,
				"state":      s.State,
				"rounds":     s.Rounds,
				"started_at": s.StartedAt.Local().Format(time.RFC3339),
			}
			if s.Status != "" {
				fields["status"] = s.Status
			}
			if s.BaselineTimeMs > 0 {
				fields["baseline"] = formatMs(s.BaselineTimeMs)
			}
			if s.BestTimeMs > 0 {
				fields["best"] = formatMs(s.BestTimeMs)
				fields["improvement"] = formatPct(s.ImprovementPct)
			}
			if s.FailureReason != "" {
				fields["failure_reason"] = s.FailureReason
			}
			if s.ConcludedAt != nil {
				fields["concluded_at"] = s.ConcludedAt.Local().Format(time.RFC3339)
			}
			client.PrintDetail(os.Stdout, fields)
			return nil
		},
	}
}

func newSessionsCancelCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api.Post("/sessions/"+url.PathEscape(args[0])+"/cancel", nil, nil); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, map[string]string{"status": "canceled", "session_id": args[0]})
			}
			fmt.Fprintf(os.Stdout, "session %s canceled\n", args[0])
			return nil
		},
	}
}

func newSessionsAttemptsCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "attempts <id>",
		Short: "List the benchmarked attempts of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var list struct {
				Data []optimizeAttempt `json:"data"`
			}
			if err := api.Get("/sessions/"+url.PathEscape(args[0])+"/attempts", nil, &list); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, list)
			}

			rows := make([][]string, 0, len(list.Data))
			for _, a := range list.Data {
				rows = append(rows, []string{
					strconv.Itoa(a.Round),
					strconv.Itoa(a.Rank),
					a.Provider,
					a.Type,
					formatMs(a.SandboxTimeMs),
					formatPct(a.ImprovementPct),
					strconv.FormatBool(a.SeqScanEliminated),
					a.Err,
				})
			}
			client.PrintTable(os.Stdout, []string{"round", "rank", "provider", "type", "time", "improvement", "seq scan gone", "error"}, rows)
			return nil
		},
	}
}

func newSessionsRecommendationsCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "recommendations <id>",
		Aliases: []string{"recs"},
		Short:   "List the advisor recommendations of a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var list struct {
				Data []struct {
					Rank                int      `json:"rank"`
					Type                string   `json:"type"`
					Description         string   `json:"description"`
					OptimizedQuery      string   `json:"optimized_query,omitempty"`
					SuggestedIndexes    []string `json:"suggested_indexes,omitempty"`
					ExpectedImprovement string   `json:"expected_improvement"`
					Provider            string   `json:"provider"`
				} `json:"data"`
			}
			if err := api.Get("/sessions/"+url.PathEscape(args[0])+"/recommendations", nil, &list); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, list)
			}

			rows := make([][]string, 0, len(list.Data))
			for _, r := range list.Data {
				rows = append(rows, []string{
					strconv.Itoa(r.Rank),
					r.Provider,
					r.Type,
					r.ExpectedImprovement,
					r.Description,
				})
			}
			client.PrintTable(os.Stdout, []string{"rank", "provider", "type", "expected", "description"}, rows)
			return nil
		},
	}
}
