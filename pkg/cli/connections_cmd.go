package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pg-advisor/pkg/cli/client"
)

type connectionView struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	SSLMode  string `json:"ssl_mode"`
}

func newConnectionsCmd(api *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage stored target connections",
	}

	cmd.AddCommand(newConnectionsListCmd(api))
	cmd.AddCommand(newConnectionsAddCmd(api))
	cmd.AddCommand(newConnectionsRemoveCmd(api))
	cmd.AddCommand(newConnectionsTestCmd(api))

	return cmd
}

func newConnectionsListCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var list struct {
				Data []connectionView `json:"data"`
			}
			if err := api.Get("/connections", nil, &list); err != nil {
				return err
			}

			if isQuiet(cmd) {
				for _, c := range list.Data {
					fmt.Fprintln(os.Stdout, c.Name)
				}
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, list)
			}

			rows := make([][]string, 0, len(list.Data))
			for _, c := range list.Data {
				rows = append(rows, []string{
					c.Name, c.Host, strconv.Itoa(c.Port), c.Database, c.Username, c.SSLMode,
				})
			}
			client.PrintTable(os.Stdout, []string{"name", "host", "port", "database", "username", "sslmode"}, rows)
			return nil
		},
	}
}

func newConnectionsAddCmd(api *client.Client) *cobra.Command {
	var (
		host          string
		port          int
		database      string
		username      string
		sslMode       string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store a target connection",
		Long: `Store a named target connection. The password is prompted for on the
terminal, or read from stdin with --password-stdin; it is encrypted at
rest and never shown again.`,
		Example: `  # Interactive password prompt
  pgadvisor connections add replica --db-host db.internal --database shop --username advisor

  # Scripted
  echo "$PGPASSWORD" | pgadvisor connections add replica \
    --db-host db.internal --database shop --username advisor --password-stdin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(passwordStdin)
			if err != nil {
				return err
			}

			body := map[string]any{
				"name":     args[0],
				"host":     host,
				"port":     port,
				"database": database,
				"username": username,
				"password": password,
				"ssl_mode": sslMode,
			}

			var created connectionView
			if err := api.Post("/connections", body, &created); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, created)
			}
			fmt.Fprintf(os.Stdout, "connection %q saved\n", created.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "db-host", "localhost", "Target database host")
	cmd.Flags().IntVar(&port, "port", 5432, "Target database port")
	cmd.Flags().StringVar(&database, "database", "", "Target database name")
	cmd.Flags().StringVar(&username, "username", "", "Target database user")
	cmd.Flags().StringVar(&sslMode, "sslmode", "prefer", "TLS mode (disable, allow, prefer, require, verify-ca, verify-full)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin instead of prompting")
	_ = cmd.MarkFlagRequired("database")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

// readPassword takes the password from stdin when asked, otherwise
// prompts on the terminal without echo.
func readPassword(fromStdin bool) (string, error) {
	if fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal: use --password-stdin")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(data), nil
}

func newConnectionsRemoveCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored connection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api.Delete("/connections/" + url.PathEscape(args[0])); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, map[string]string{"status": "deleted", "name": args[0]})
			}
			fmt.Fprintf(os.Stdout, "connection %q deleted\n", args[0])
			return nil
		},
	}
}

func newConnectionsTestCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "test <name>",
		Short: "Check that a stored connection answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Status string `json:"status"`
			}
			if err := api.Post("/connections/"+url.PathEscape(args[0])+"/test", nil, &res); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, res)
			}
			fmt.Fprintf(os.Stdout, "connection %q is reachable\n", args[0])
			return nil
		},
	}
}
