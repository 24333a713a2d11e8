package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:     "prompts",
	Aliases: []string{"prompt"},
	Short:   "Manage saved report prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := env.prompts.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, p := range list {
			fmt.Fprintf(out, "%-16s %s\n", p.Name, truncate(strings.Join(strings.Fields(p.Text), " "), 80))
		}
		return nil
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a saved prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := env.prompts.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.Text)
		return nil
	},
}

var promptsAddCmd = &cobra.Command{
	Use:   "add <name> <text>",
	Short: "Save a prompt",
	Long: `Save a named report prompt for 'minutes report generate --prompt <name>'.

Examples:
  minutes prompts add decisions "Senaraikan keputusan mesyuarat sahaja."`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.prompts.Add(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved prompt %s\n", args[0])
		return nil
	},
}

var promptsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a saved prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.prompts.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed prompt %s\n", args[0])
		return nil
	},
}

func init() {
	promptsCmd.AddCommand(promptsListCmd, promptsShowCmd, promptsAddCmd, promptsRemoveCmd)
}
