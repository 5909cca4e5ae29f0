package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pg-advisor/pkg/cli/client"
)

type validateResult struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Type     string   `json:"type,omitempty"`
	Tables   []string `json:"tables,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func newValidateCmd(api *client.Client) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate [sql]",
		Short: "Check whether a query is accepted for optimization",
		Long:  "Parse a query and report whether the optimizer accepts it: a single SELECT statement with no prohibited functions.",
		Example: `  # Validate a query
  pgadvisor validate "SELECT * FROM orders WHERE status = 'open'"

  # Validate a query from a file
  pgadvisor validate --file query.sql

  # Validate from stdin
  cat query.sql | pgadvisor validate -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(args, file)
			if err != nil {
				return err
			}

			var res validateResult
			if err := api.Post("/validate", map[string]string{"sql": sql}, &res); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, res)
			}
			if !res.Valid {
				fmt.Fprintf(os.Stdout, "rejected: %s\n", res.Reason)
				return nil
			}
			fmt.Fprintf(os.Stdout, "valid %s query on %s\n", res.Type, strings.Join(res.Tables, ", "))
			for _, w := range res.Warnings {
				fmt.Fprintf(os.Stdout, "warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file")

	return cmd
}
