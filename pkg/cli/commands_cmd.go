package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pg-advisor/pkg/cli/client"
)

// CommandEntry describes one leaf command for introspection output.
type CommandEntry struct {
	Path    string      `json:"path"`
	Group   string      `json:"group"`
	Short   string      `json:"short"`
	Long    string      `json:"long,omitempty"`
	Example string      `json:"example,omitempty"`
	Args    string      `json:"args,omitempty"`
	Flags   []FlagEntry `json:"flags,omitempty"`
}

// FlagEntry describes one flag of a command.
type FlagEntry struct {
	Name     string `json:"name"`
	Short    string `json:"shorthand,omitempty"`
	Type     string `json:"type"`
	Default  string `json:"default,omitempty"`
	Usage    string `json:"usage,omitempty"`
	Required bool   `json:"required,omitempty"`
}

func newCommandsCmd() *cobra.Command {
	var (
		filter string
		group  string
	)

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List every CLI command with its flags and descriptions",
		Long: `Walk the command tree and print each command with its path, arguments,
flags, and examples. Runs entirely offline, so it works without a
reachable server.`,
		Example: `  # List all commands
  pgadvisor commands

  # Search for session-related commands
  pgadvisor commands --filter session

  # Full metadata as JSON
  pgadvisor commands --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := walkCommands(cmd.Root(), "")

			if group != "" {
				var kept []CommandEntry
				for _, e := range entries {
					if e.Group == group {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
			if filter != "" {
				needle := strings.ToLower(filter)
				var kept []CommandEntry
				for _, e := range entries {
					haystack := strings.ToLower(e.Path + " " + e.Short + " " + e.Long)
					if strings.Contains(haystack, needle) {
						kept = append(kept, e)
					}
				}
				entries = kept
			}

			if isQuiet(cmd) {
				for _, e := range entries {
					fmt.Fprintln(os.Stdout, e.Path)
				}
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(os.Stdout, entries)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Path, e.Short})
			}
			client.PrintTable(os.Stdout, []string{"command", "description"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Substring search across command names and descriptions")
	cmd.Flags().StringVar(&group, "group", "", "Only show commands under this group (e.g. sessions, connections)")

	return cmd
}

// walkCommands recursively collects the leaf commands of the tree.
// Groups with subcommands contribute their leaves, not themselves.
func walkCommands(cmd *cobra.Command, parentPath string) []CommandEntry {
	var entries []CommandEntry

	for _, child := range cmd.Commands() {
		if child.Hidden || child.Name() == "help" || child.Name() == "completion" {
			continue
		}

		childPath := child.Name()
		if parentPath != "" {
			childPath = parentPath + " " + child.Name()
		}

		if child.HasSubCommands() {
			entries = append(entries, walkCommands(child, childPath)...)
			continue
		}

		group, _, _ := strings.Cut(childPath, " ")

		// Positional arguments are whatever follows the command name
		// in the Use line.
		args := ""
		if fields := strings.Fields(child.Use); len(fields) > 1 {
			args = strings.Join(fields[1:], " ")
		}

		entries = append(entries, CommandEntry{
			Path:    childPath,
			Group:   group,
			Short:   child.Short,
			Long:    child.Long,
			Example: child.Example,
			Args:    args,
			Flags:   collectFlags(child),
		})
	}

	return entries
}

// collectFlags gathers the visible flags of a command, help excluded.
func collectFlags(cmd *cobra.Command) []FlagEntry {
	var flags []FlagEntry
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		entry := FlagEntry{
			Name:    f.Name,
			Short:   f.Shorthand,
			Type:    f.Value.Type(),
			Default: f.DefValue,
			Usage:   f.Usage,
		}
		if ann, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(ann) > 0 && ann[0] == "true" {
			entry.Required = true
		}
		flags = append(flags, entry)
	})
	return flags
}
