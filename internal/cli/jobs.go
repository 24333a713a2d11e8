package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect tracked jobs",
	Long: `List all tracked transcription and report jobs from the local mirror, or
inspect a specific job by ID.

Examples:
  minutes jobs           # List all jobs
  minutes jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, cmd.OutOrStdout(), args[0])
	}

	// List all jobs
	var all []jobs.Record
	for _, kind := range jobs.Kinds {
		s, err := env.synchronizer(ctx, kind)
		if err != nil {
			return err
		}
		records, err := s.Records(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", kind.Collection(), err)
		}
		all = append(all, records...)
	}
	printRecords(cmd.OutOrStdout(), all, true)
	return nil
}

// listKind prints the mirrored records of one kind.
func listKind(cmd *cobra.Command, kind jobs.Kind) error {
	ctx := cmd.Context()
	s, err := env.synchronizer(ctx, kind)
	if err != nil {
		return err
	}
	records, err := s.Records(ctx)
	if err != nil {
		return fmt.Errorf("list %s: %w", kind.Collection(), err)
	}
	printRecords(cmd.OutOrStdout(), records, false)
	if slices.ContainsFunc(records, func(r jobs.Record) bool { return r.Status.InFlight() }) {
		fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'minutes watch' to follow jobs in progress.")
	}
	return nil
}

func printRecords(w io.Writer, records []jobs.Record, withKind bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return
	}
	slices.SortStableFunc(records, func(a, b jobs.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if withKind {
		fmt.Fprintf(w, "%-36s %-14s %-11s %-8s %-16s %s\n", "ID", "KIND", "STATUS", "PROGRESS", "CREATED", "TITLE")
	} else {
		fmt.Fprintf(w, "%-36s %-11s %-8s %-16s %s\n", "ID", "STATUS", "PROGRESS", "CREATED", "TITLE")
	}
	fmt.Fprintln(w, "----------------------------------------------------------------------------------------------------------")

	for _, r := range records {
		created := r.CreatedAt.Local().Format("2006-01-02 15:04")
		progress := fmt.Sprintf("%d%%", r.Progress)
		if withKind {
			fmt.Fprintf(w, "%-36s %-14s %-11s %-8s %-16s %s\n", r.ID, r.Kind, r.Status, progress, created, truncate(r.Title, 40))
		} else {
			fmt.Fprintf(w, "%-36s %-11s %-8s %-16s %s\n", r.ID, r.Status, progress, created, truncate(r.Title, 40))
		}
	}
}

func showJob(ctx context.Context, w io.Writer, id string) error {
	for _, kind := range jobs.Kinds {
		s, err := env.synchronizer(ctx, kind)
		if err != nil {
			return err
		}
		rec, err := s.Get(ctx, id)
		if errors.Is(err, jobs.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}

		fmt.Fprintf(w, "Job: %s\n", rec.ID)
		fmt.Fprintf(w, "  Kind: %s\n", rec.Kind)
		fmt.Fprintf(w, "  Title: %s\n", rec.Title)
		fmt.Fprintf(w, "  Status: %s\n", rec.Status)
		fmt.Fprintf(w, "  Progress: %d%%\n", rec.Progress)
		if rec.SourceID != "" {
			fmt.Fprintf(w, "  Source: %s\n", rec.SourceID)
		}
		fmt.Fprintf(w, "  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
		if !rec.UpdatedAt.IsZero() {
			fmt.Fprintf(w, "  Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
		}
		if rec.Message != "" {
			fmt.Fprintf(w, "  Message: %s\n", rec.Message)
		}
		if rec.ResultText != "" {
			fmt.Fprintf(w, "  Transcript: %d characters\n", len([]rune(rec.ResultText)))
		}
		if rec.ResultBlobRef != "" {
			fmt.Fprintf(w, "  Document: %s\n", rec.ResultBlobRef)
		}
		return nil
	}
	return fmt.Errorf("job not found: %s", id)
}
