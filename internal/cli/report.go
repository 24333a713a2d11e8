package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/raphaelgruber/minutes-go/internal/prompts"
	"github.com/spf13/cobra"
)

var (
	reportTitle   string
	reportPrompt  string
	reportMinutes bool
	reportWait    bool
	reportOutput  string
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Aliases: []string{"reports"},
	Short:   "Generate, list, download and delete reports",
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate <transcript-id> [prompt]",
	Short: "Generate a report from a transcript",
	Long: `Generate a report from a finished transcript. The instruction is either
given as text, picked from the saved prompts with --prompt, or --minutes for
the formal meeting minutes template.

Examples:
  minutes report generate 3f2a... "Senaraikan semua keputusan mesyuarat"
  minutes report generate 3f2a... --prompt summary
  minutes report generate 3f2a... --minutes --title "Minit Mesyuarat Mac" --wait`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runReportGenerate,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	Long: `List reports. When logged in, the server's list is merged into the local
one first: reports the server no longer has are dropped.`,
	Args: cobra.NoArgs,
	RunE: runReportList,
}

var reportDownloadCmd = &cobra.Command{
	Use:   "download <report-id>",
	Short: "Save a finished report as a Word document",
	Long: `Save a finished report. Defaults to "<title>.docx" in the current
directory. A copy cached when the report finished is reused.

Examples:
  minutes report download 9c1e...
  minutes report download 9c1e... -o ~/Documents/minit-mac.docx`,
	Args: cobra.ExactArgs(1),
	RunE: runReportDownload,
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Delete a report locally and on the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportDelete,
}

func init() {
	reportGenerateCmd.Flags().StringVarP(&reportTitle, "title", "t", "", "report title")
	reportGenerateCmd.Flags().StringVarP(&reportPrompt, "prompt", "p", "", "name of a saved prompt")
	reportGenerateCmd.Flags().BoolVar(&reportMinutes, "minutes", false, "use the meeting minutes template")
	reportGenerateCmd.Flags().BoolVarP(&reportWait, "wait", "w", false, "follow the job until it finishes")
	reportGenerateCmd.MarkFlagsMutuallyExclusive("prompt", "minutes")

	reportDownloadCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output file")

	reportCmd.AddCommand(reportGenerateCmd, reportListCmd, reportDownloadCmd, reportDeleteCmd)
}

// resolvePrompt picks the report instruction from the arguments and flags.
func resolvePrompt(store *prompts.Store, text, name string, minutes bool) (string, error) {
	set := 0
	for _, b := range []bool{text != "", name != "", minutes} {
		if b {
			set++
		}
	}
	switch {
	case set == 0:
		return "", errors.New("a prompt is required: pass text, --prompt <name> or --minutes")
	case set > 1:
		return "", errors.New("pass only one of prompt text, --prompt or --minutes")
	case minutes:
		return strings.TrimSpace(prompts.MinutesTemplate), nil
	case name != "":
		p, err := store.Get(name)
		if err != nil {
			return "", err
		}
		return p.Text, nil
	default:
		return text, nil
	}
}

func runReportGenerate(cmd *cobra.Command, args []string) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	ctx := cmd.Context()
	transcriptID := args[0]

	var text string
	if len(args) == 2 {
		text = args[1]
	}
	prompt, err := resolvePrompt(env.prompts, text, reportPrompt, reportMinutes)
	if err != nil {
		return err
	}

	title := reportTitle
	if title == "" {
		title = defaultReportTitle(ctx, transcriptID)
	}

	resp, err := env.client.GenerateReport(ctx, client.GenerateReportInput{
		TranscriptID: transcriptID,
		Prompt:       prompt,
		Title:        title,
	})
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	s, err := env.synchronizer(ctx, jobs.KindReport)
	if err != nil {
		return err
	}
	err = s.Track(ctx, jobs.Record{ID: resp.ReportID, Title: title, SourceID: transcriptID, Status: jobs.StatusPending})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started report %s (%s)\n", resp.ReportID, title)

	if !reportWait {
		return nil
	}
	return followJobs(cmd, []*jobs.Synchronizer{s}, resp.ReportID)
}

// defaultReportTitle names a report after its transcript when the mirror
// knows it.
func defaultReportTitle(ctx context.Context, transcriptID string) string {
	s, err := env.synchronizer(ctx, jobs.KindTranscription)
	if err == nil {
		if rec, err := s.Get(ctx, transcriptID); err == nil && rec.Title != "" {
			return "Laporan " + rec.Title
		}
	}
	return "Laporan " + transcriptID
}

func runReportList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := env.synchronizer(ctx, jobs.KindReport)
	if err != nil {
		return err
	}

	if env.requireLogin() == nil {
		remote, err := env.client.ListReports(ctx)
		if err != nil {
			warnf(cmd, "showing local reports only: %v", err)
		} else if _, err := s.MergeRemote(ctx, summariesToRecords(remote), true); err != nil {
			return err
		}
	}
	return listKind(cmd, jobs.KindReport)
}

// summariesToRecords converts the server listing. Unknown statuses are left
// empty so the merge keeps the local status.
func summariesToRecords(list []client.ReportSummary) []jobs.Record {
	out := make([]jobs.Record, 0, len(list))
	for _, r := range list {
		status, _ := jobs.ParseStatus(r.Status)
		out = append(out, jobs.Record{
			ID:        r.ID,
			Title:     r.Title,
			Status:    status,
			Progress:  int(r.Progress),
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

func runReportDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	s, err := env.synchronizer(ctx, jobs.KindReport)
	if err != nil {
		return err
	}

	rec, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, jobs.ErrRecordNotFound) {
		return err
	}
	known := err == nil
	if known && rec.Status.InFlight() {
		return fmt.Errorf("report %s is still %s (%d%%)", id, rec.Status, rec.Progress)
	}

	var data []byte
	if known && rec.ResultBlobRef != "" {
		data, err = env.blobs.GetBlob(ctx, rec.ResultBlobRef)
		if err != nil {
			env.logger.Warn("cached report unreadable, downloading again", "job_id", id, "error", err)
		}
	}
	if data == nil {
		if err := env.requireLogin(); err != nil {
			return err
		}
		data, err = env.client.GetReport(ctx, id)
		if err != nil {
			return fmt.Errorf("download report: %w", err)
		}
		if known {
			if ref, err := env.blobs.PutBlob(ctx, id+".docx", data); err == nil {
				_, _ = s.AttachBlob(ctx, id, ref)
			}
		}
	}

	path := reportOutput
	if path == "" {
		title := id
		if known && rec.Title != "" {
			title = rec.Title
		}
		path = reportFileName(title)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}

// reportFileName turns a title into a safe "<title>.docx" file name.
func reportFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" || name == "." || name == ".." {
		name = "report"
	}
	if !strings.EqualFold(filepath.Ext(name), ".docx") {
		name += ".docx"
	}
	return name
}

func runReportDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	s, err := env.synchronizer(ctx, jobs.KindReport)
	if err != nil {
		return err
	}

	removed, err := s.Remove(ctx, id)
	if err != nil {
		return err
	}

	if err := env.requireLogin(); err != nil {
		warnf(cmd, "removed locally only: %v", err)
		return nil
	}
	if err := env.client.DeleteReport(ctx, id); err != nil {
		if !removed {
			return fmt.Errorf("delete report: %w", err)
		}
		warnf(cmd, "removed locally, but the server delete failed: %v", err)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %s\n", id)
	return nil
}
