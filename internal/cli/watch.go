package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/raphaelgruber/minutes-go/internal/notify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// notificationTTL is how long a notification stays in the live view.
const notificationTTL = 8 * time.Second

var watchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow transcriptions and reports in progress",
	Long: `Resume polling every job still in progress and show a live view until
they finish. Records stuck in progress for longer than the stale threshold
(MINUTES_STALE_AFTER, default 1h) are discarded first.

Quitting only stops watching: the jobs keep running on the server and
polling resumes the next time a command opens the job list.

Examples:
  minutes watch
  minutes watch --plain   # one line per event, no live view`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print notifications line by line instead of the live view")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	ctx := cmd.Context()

	syncs := make([]*jobs.Synchronizer, 0, len(jobs.Kinds))
	for _, kind := range jobs.Kinds {
		s, err := env.synchronizer(ctx, kind)
		if err != nil {
			return err
		}
		syncs = append(syncs, s)
	}

	err := followJobs(cmd, syncs)
	if serr := saveMetrics(env.metrics.Snapshot()); serr != nil {
		env.logger.Warn("failed to save poll statistics", "error", serr)
	}
	return err
}

// followJobs opens syncs (sweeping stale records and resuming polling) and
// follows their jobs until they finish. With ids, only those jobs count.
func followJobs(cmd *cobra.Command, syncs []*jobs.Synchronizer, ids ...string) error {
	ctx := cmd.Context()

	// Polling outlives Open, so the pollers must not inherit a group context
	// that is cancelled once Wait returns.
	var g errgroup.Group
	reports := make([]jobs.SweepReport, len(syncs))
	for i, s := range syncs {
		g.Go(func() error {
			r, err := s.Open(ctx)
			reports[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, r := range reports {
		if r.Removed > 0 {
			warnf(cmd, "discarded %d stale %s", r.Removed, syncs[i].Kind().Collection())
		}
	}

	out := cmd.OutOrStdout()
	if watchPlain || !isTerminal(out) {
		env.listen(notify.NewTerminal(out))
		return followPlain(ctx, syncs, ids)
	}

	slot := jobs.NewSlot(notificationTTL)
	env.listen(slot)
	return runWatchView(syncs, slot, ids...)
}

// followPlain waits until no watched job is in flight. Notifications are
// printed by the terminal notifier as they happen.
func followPlain(ctx context.Context, syncs []*jobs.Synchronizer, ids []string) error {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		inFlight, failed, err := watchedState(ctx, syncs, ids)
		if err != nil {
			return err
		}
		if inFlight == 0 {
			if len(ids) > 0 && failed != nil {
				return fmt.Errorf("job %s failed: %s", failed.ID, failed.Message)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// watchedState counts in-flight jobs and returns the first failed one.
func watchedState(ctx context.Context, syncs []*jobs.Synchronizer, ids []string) (int, *jobs.Record, error) {
	only := make(map[string]bool, len(ids))
	for _, id := range ids {
		only[id] = true
	}

	inFlight := 0
	var failed *jobs.Record
	for _, s := range syncs {
		records, err := s.Records(ctx)
		if err != nil {
			return 0, nil, err
		}
		for _, r := range records {
			if len(only) > 0 && !only[r.ID] {
				continue
			}
			switch {
			case r.Status.InFlight():
				inFlight++
			case r.Status == jobs.StatusError && failed == nil:
				failed = &r
			}
		}
	}
	return inFlight, failed, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
