package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	statsPeriod string
	statsLocal  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show service statistics",
	Long: `Show service-wide counters and user activity for a period.

With --local, show the timings of the API calls made by the last
'minutes watch' session instead.

Examples:
  minutes stats
  minutes stats --period week
  minutes stats --local`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsPeriod, "period", "all", "user activity period (all, week, month)")
	statsCmd.Flags().BoolVar(&statsLocal, "local", false, "show poll timings from the last watch session")
}

func runStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if statsLocal {
		snap, err := loadMetrics()
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "No watch session recorded yet")
			return nil
		}
		if err != nil {
			return err
		}
		printMetrics(out, snap)
		return nil
	}

	if err := env.requireLogin(); err != nil {
		return err
	}
	switch statsPeriod {
	case "all", "week", "month":
	default:
		return fmt.Errorf("invalid period %q: must be all, week or month", statsPeriod)
	}

	ctx := cmd.Context()
	stats, err := env.client.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("get statistics: %w", err)
	}
	users, err := env.client.UserStatistics(ctx, statsPeriod)
	if err != nil {
		return fmt.Errorf("get user statistics: %w", err)
	}
	printServerStats(out, stats, users)
	return nil
}

// printServerStats displays the service counters and user activity.
func printServerStats(w io.Writer, stats *client.Statistics, users *client.UserStatistics) {
	fmt.Fprintf(w, "Service Statistics\n")
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "Users:       %d\n", stats.TotalUsers)
	fmt.Fprintf(w, "Audio files: %d\n", stats.TotalAudioFiles)
	fmt.Fprintf(w, "Transcripts: %d\n", stats.TotalTranscripts)
	fmt.Fprintf(w, "Reports:     %d\n", stats.TotalReports)

	fmt.Fprintf(w, "\nUser Activity (%s): %d users\n", statsPeriod, users.UserCount)
	if len(users.Users) == 0 {
		return
	}
	fmt.Fprintf(w, "  %-20s %-30s %-20s %s\n", "USERNAME", "EMAIL", "CREATED", "LAST LOGIN")
	for _, u := range users.Users {
		fmt.Fprintf(w, "  %-20s %-30s %-20s %s\n", truncate(u.Username, 20), truncate(u.Email, 30), truncate(u.CreatedAt, 20), u.LastLogin)
	}
}

// printMetrics displays timing statistics per operation.
func printMetrics(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintf(w, "API Call Statistics (last watch session, %.1f seconds)\n", snap.UptimeSeconds)
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	if len(snap.Operations) == 0 {
		fmt.Fprintln(w, "No calls recorded")
		return
	}
	for _, op := range snap.Operations {
		fmt.Fprintf(w, "\n%s:\n", op.Name)
		fmt.Fprintf(w, "  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
		fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	}
}

func metricsFile() string {
	return filepath.Join(env.cfg.StateDir, "watch-stats.json")
}

func saveMetrics(snap metrics.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(env.cfg.StateDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(metricsFile(), data, 0o644)
}

func loadMetrics() (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	data, err := os.ReadFile(metricsFile())
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse %s: %w", metricsFile(), err)
	}
	return snap, nil
}
