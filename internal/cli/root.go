// Package cli provides the command-line interface for minutes.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/raphaelgruber/minutes-go/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and wiring, set up in PersistentPreRunE.
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	env      *app
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "minutes",
	Short: "Transcribe meetings and turn them into minutes",
	Long: `Minutes is a command-line client for the transcription and minutes service.

Upload meeting recordings, start transcriptions, edit transcripts and
generate reports (including formal meeting minutes) from them. Long-running
jobs are tracked locally and keep being polled across invocations, so a
restarted client picks up where it left off.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// Console logging only when asked for; the live view owns the terminal.
		var console io.Writer
		if verbose {
			console = cmd.ErrOrStderr()
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel, console)
		slog.SetDefault(logger)

		env, err = newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown(cmd)
	},
}

// teardown stops polling and closes the database and log file. It is safe
// to call more than once.
func teardown(cmd *cobra.Command) {
	if env != nil {
		if err := env.Close(context.Background()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
		env = nil
	}
	if closeLog != nil {
		_ = closeLog()
		closeLog = nil
	}
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	// PersistentPostRun is skipped when a command fails.
	defer teardown(rootCmd)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (logs to stderr)")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(audioCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(transcriptsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}

// warnf prints a non-fatal problem to stderr.
func warnf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: "+format+"\n", args...)
}
