package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	editText string
	editFile string
)

var transcriptsCmd = &cobra.Command{
	Use:     "transcripts",
	Aliases: []string{"transcript"},
	Short:   "List, read, edit and delete transcripts",
}

var transcriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked transcriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listKind(cmd, jobs.KindTranscription)
	},
}

var transcriptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a transcript",
	Long: `Print a transcript. The locally cached text is used when present;
otherwise it is fetched from the server and cached.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscriptShow,
}

var transcriptsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a transcript",
	Long: `Replace the text of a transcript. Without --text or --file the transcript
is opened in $EDITOR. The local copy is updated first; if the server update
fails the local edit is kept and a warning is printed.

Examples:
  minutes transcripts edit 3f2a...
  minutes transcripts edit 3f2a... --file corrected.txt
  cat corrected.txt | minutes transcripts edit 3f2a... --file -`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscriptEdit,
}

var transcriptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transcript locally and on the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptDelete,
}

func init() {
	transcriptsEditCmd.Flags().StringVar(&editText, "text", "", "new transcript text")
	transcriptsEditCmd.Flags().StringVarP(&editFile, "file", "f", "", "read new text from file ('-' for stdin)")
	transcriptsEditCmd.MarkFlagsMutuallyExclusive("text", "file")

	transcriptsCmd.AddCommand(transcriptsListCmd, transcriptsShowCmd, transcriptsEditCmd, transcriptsDeleteCmd)
}

func runTranscriptShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := env.synchronizer(ctx, jobs.KindTranscription)
	if err != nil {
		return err
	}
	text, err := transcriptText(ctx, s, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// transcriptText prefers the mirrored text and falls back to the server,
// caching what it fetched.
func transcriptText(ctx context.Context, s *jobs.Synchronizer, id string) (string, error) {
	rec, err := s.Get(ctx, id)
	if err == nil && rec.ResultText != "" {
		return rec.ResultText, nil
	}
	if err != nil && !errors.Is(err, jobs.ErrRecordNotFound) {
		return "", err
	}

	if err := env.requireLogin(); err != nil {
		return "", err
	}
	t, ferr := env.client.GetTranscript(ctx, id)
	if ferr != nil {
		if errors.Is(ferr, client.ErrNotFound) {
			return "", fmt.Errorf("transcript not found: %s", id)
		}
		return "", fmt.Errorf("fetch transcript: %w", ferr)
	}

	if err == nil {
		_, err = s.UpdateText(ctx, id, t.Text)
	} else {
		err = s.Track(ctx, jobs.Record{ID: id, Title: t.Title, Status: jobs.StatusCompleted, Progress: 100, ResultText: t.Text, NotifiedCompletion: true})
	}
	if err != nil {
		env.logger.Warn("failed to cache transcript", "job_id", id, "error", err)
	}
	return t.Text, nil
}

func runTranscriptEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	s, err := env.synchronizer(ctx, jobs.KindTranscription)
	if err != nil {
		return err
	}

	var text string
	switch {
	case cmd.Flags().Changed("text"):
		text = editText
	case editFile == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	case editFile != "":
		b, err := os.ReadFile(editFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", editFile, err)
		}
		text = string(b)
	default:
		current, err := transcriptText(ctx, s, id)
		if err != nil {
			return err
		}
		text, err = editInEditor(cmd, current)
		if err != nil {
			return err
		}
		if text == current {
			fmt.Fprintln(cmd.OutOrStdout(), "No changes")
			return nil
		}
	}

	if _, err := s.UpdateText(ctx, id, text); err != nil {
		if !errors.Is(err, jobs.ErrRecordNotFound) {
			return err
		}
		err = s.Track(ctx, jobs.Record{ID: id, Status: jobs.StatusCompleted, Progress: 100, ResultText: text, NotifiedCompletion: true})
		if err != nil {
			return err
		}
	}

	if err := env.requireLogin(); err != nil {
		warnf(cmd, "saved locally only: %v", err)
		return nil
	}
	if err := env.client.UpdateTranscript(ctx, id, text); err != nil {
		warnf(cmd, "saved locally, but the server update failed: %v", err)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated transcript %s\n", id)
	return nil
}

// editInEditor opens text in $VISUAL or $EDITOR and returns the result.
func editInEditor(cmd *cobra.Command, text string) (string, error) {
	editor := firstNonEmpty(os.Getenv("VISUAL"), os.Getenv("EDITOR"), "vi")

	dir, err := os.MkdirTemp("", "minutes-edit-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "transcript.txt")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	parts := strings.Fields(editor)
	c := exec.CommandContext(cmd.Context(), parts[0], append(parts[1:], path)...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("run editor %s: %w", editor, err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read edited file: %w", err)
	}
	return string(b), nil
}

func runTranscriptDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	s, err := env.synchronizer(ctx, jobs.KindTranscription)
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
	if err := env.client.DeleteTranscript(ctx, id); err != nil {
		if !removed {
			return fmt.Errorf("delete transcript: %w", err)
		}
		warnf(cmd, "removed locally, but the server delete failed: %v", err)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted transcript %s\n", id)
	return nil
}
