package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pg-advisor/pkg/cli/client"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			fmt.Fprintf(os.Stdout, "pgadvisor version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
