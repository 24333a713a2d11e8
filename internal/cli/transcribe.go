package cli

import (
	"fmt"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	transcribeTitle    string
	transcribeModel    string
	transcribeLanguage string
	transcribeWorkers  int
	transcribeWait     bool
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file-id>",
	Short: "Start transcribing an uploaded recording",
	Long: `Start a transcription job for an uploaded audio file. The job is tracked
locally; use --wait to follow it, or 'minutes watch' later.

Examples:
  minutes transcribe 3f2a... --title "Mesyuarat Bulanan Mac"
  minutes transcribe 3f2a... --language ms --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	transcribeCmd.Flags().StringVarP(&transcribeTitle, "title", "t", "", "transcript title (defaults to the file name)")
	transcribeCmd.Flags().StringVar(&transcribeModel, "model", "", "transcription model (default from config)")
	transcribeCmd.Flags().StringVar(&transcribeLanguage, "language", "", "spoken language or 'auto' (default from config)")
	transcribeCmd.Flags().IntVar(&transcribeWorkers, "workers", 0, "parallel workers (default from config)")
	transcribeCmd.Flags().BoolVarP(&transcribeWait, "wait", "w", false, "follow the job until it finishes")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	ctx := cmd.Context()
	fileID := args[0]

	title := transcribeTitle
	if title == "" {
		if f, ok, err := env.audio.Get(fileID); err == nil && ok {
			title = f.Name
		} else {
			title = fileID
		}
	}

	input := client.TranscribeInput{
		FileID:     fileID,
		Title:      title,
		MaxWorkers: firstPositive(transcribeWorkers, env.cfg.MaxWorkers),
		ModelName:  firstNonEmpty(transcribeModel, env.cfg.ModelName),
		Language:   firstNonEmpty(transcribeLanguage, env.cfg.Language),
	}
	resp, err := env.client.Transcribe(ctx, input)
	if err != nil {
		return fmt.Errorf("start transcription: %w", err)
	}

	s, err := env.synchronizer(ctx, jobs.KindTranscription)
	if err != nil {
		return err
	}
	err = s.Track(ctx, jobs.Record{ID: resp.RequestID, Title: title, SourceID: fileID, Status: jobs.StatusPending})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started transcription %s (%s)\n", resp.RequestID, title)

	if !transcribeWait {
		return nil
	}
	return followJobs(cmd, []*jobs.Synchronizer{s}, resp.RequestID)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
