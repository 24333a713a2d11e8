package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/state"
	"github.com/spf13/cobra"
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Manage uploaded recordings",
}

var audioUploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload recordings for transcription",
	Long: `Upload one or more audio files. Each upload is remembered locally so it
can be transcribed later by id.

Examples:
  minutes audio upload mesyuarat-2026-03-02.mp3
  minutes audio upload *.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAudioUpload,
}

var audioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded recordings",
	Args:  cobra.NoArgs,
	RunE:  runAudioList,
}

var audioRemoveCmd = &cobra.Command{
	Use:   "remove <file-id>",
	Short: "Forget an uploaded recording (local only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := env.audio.Remove(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("audio file not found: %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	audioCmd.AddCommand(audioUploadCmd, audioListCmd, audioRemoveCmd)
}

func runAudioUpload(cmd *cobra.Command, args []string) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return fmt.Errorf("stat %s: %w", path, err)
		}

		name := filepath.Base(path)
		resp, err := env.client.Upload(cmd.Context(), name, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}

		err = env.audio.Add(state.AudioFile{
			ID:         resp.FileID,
			Name:       name,
			Size:       info.Size(),
			UploadedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Uploaded %s (%s)\n", name, resp.FileID)
	}
	return nil
}

func runAudioList(cmd *cobra.Command, args []string) error {
	files, err := env.audio.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No audio files uploaded")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-32s %10s %s\n", "ID", "NAME", "SIZE", "UPLOADED")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------------")
	for _, f := range files {
		fmt.Fprintf(out, "%-36s %-32s %10s %s\n", f.ID, truncate(f.Name, 32), formatSize(f.Size), f.UploadedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
