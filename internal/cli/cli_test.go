package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/devserver"
	"github.com/raphaelgruber/minutes-go/internal/prompts"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cliUser = client.RegisterInput{
	Username:        "aminah",
	Email:           "aminah@example.my",
	Password:        "Rahsia123",
	ConfirmPassword: "Rahsia123",
	FullName:        "Aminah Yusof",
}

// setupEnv points the CLI at a fresh dev server and state directory.
func setupEnv(t *testing.T) (*devserver.Server, string) {
	t.Helper()
	srv, err := devserver.New(devserver.Options{Step: 50, Users: []client.RegisterInput{cliUser}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	for key, val := range map[string]string{
		"MINUTES_SERVER_URL":      ts.URL,
		"MINUTES_STATE_DIR":       filepath.Join(dir, "state"),
		"MINUTES_LOG_FILE":        filepath.Join(dir, "minutes.log"),
		"MINUTES_POLL_INTERVAL":   "5ms",
		"MINUTES_MIRROR":          "file",
		"MINUTES_CONFIG":          "",
		"MINUTES_PROMPTS_FILE":    filepath.Join(dir, "prompts.yaml"),
		"XDG_CONFIG_HOME":         filepath.Join(dir, "config"),
		"MINUTES_SLACK_TOKEN":     "",
		"MINUTES_SLACK_CHANNEL":   "",
		"MINUTES_DISCORD_TOKEN":   "",
		"MINUTES_DISCORD_CHANNEL": "",
	} {
		t.Setenv(key, val)
	}
	return srv, dir
}

// run executes the CLI with args and stdin, returning stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	// A command that never finishes fails the test instead of hanging it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := ExecuteContext(ctx)
	require.NoError(t, ctx.Err(), "command did not finish: %v", args)
	return out.String(), errOut.String(), err
}

// resetFlags restores every flag to its default between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, errOut, err := run(t, stdin, args...)
	require.NoError(t, err, "stderr: %s", errOut)
	return out
}

var idPattern = regexp.MustCompile(`\(([0-9a-f-]{36})\)`)
var startedPattern = regexp.MustCompile(`Started \w+ ([0-9a-f-]{36})`)

func TestCLI_EndToEnd(t *testing.T) {
	_, dir := setupEnv(t)

	_, _, err := run(t, "", "audio", "upload", "x.mp3")
	assert.ErrorIs(t, err, errNotLoggedIn)

	out := mustRun(t, "Rahsia123\nRahsia123\n", "register", "--username", "Budi", "--email", "budi@example.my", "--full-name", "Budi Santoso")
	assert.Contains(t, out, "Registered budi")

	_, _, err = run(t, "short\nshort\n", "register", "--username", "cik", "--email", "cik@example.my", "--full-name", "Cik")
	assert.ErrorContains(t, err, "at least 8 characters")

	out = mustRun(t, cliUser.Password+"\n", "login", "--email", cliUser.Email)
	assert.Contains(t, out, "Logged in as aminah@example.my")

	audio := filepath.Join(dir, "mesyuarat.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3 audio"), 0o644))
	out = mustRun(t, "", "audio", "upload", audio)
	m := idPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	fileID := m[1]

	out = mustRun(t, "", "audio", "list")
	assert.Contains(t, out, "mesyuarat.mp3")

	out = mustRun(t, "", "transcribe", fileID, "--wait")
	m = startedPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	transcriptID := m[1]
	assert.Contains(t, out, "Transcript is ready")

	out = mustRun(t, "", "jobs", transcriptID)
	assert.Contains(t, out, "Status: completed")
	assert.Contains(t, out, "Title: mesyuarat.mp3")

	out = mustRun(t, "", "transcripts", "show", transcriptID)
	assert.Contains(t, out, "Transkrip rakaman mesyuarat.mp3")

	out = mustRun(t, "", "transcripts", "edit", transcriptID, "--text", "Teks yang telah disemak.")
	assert.Contains(t, out, "Updated transcript")
	out = mustRun(t, "", "transcripts", "show", transcriptID)
	assert.Equal(t, "Teks yang telah disemak.\n", out)

	out = mustRun(t, "", "report", "generate", transcriptID, "--minutes", "--title", "Minit Mac", "--wait")
	m = startedPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	reportID := m[1]
	assert.Contains(t, out, "Report is ready")

	out = mustRun(t, "", "report", "list")
	assert.Contains(t, out, reportID)
	assert.Contains(t, out, "Minit Mac")

	docx := filepath.Join(dir, "minit.docx")
	out = mustRun(t, "", "report", "download", reportID, "-o", docx)
	assert.Contains(t, out, "Saved "+docx)
	data, err := os.ReadFile(docx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	out = mustRun(t, "", "stats", "--period", "week")
	assert.Contains(t, out, "Users:       2")
	assert.Contains(t, out, "Reports:     1")

	out = mustRun(t, "", "stats", "--local")
	assert.Contains(t, out, "No watch session recorded yet")
	mustRun(t, "", "watch", "--plain")
	out = mustRun(t, "", "stats", "--local")
	assert.Contains(t, out, "API Call Statistics")

	mustRun(t, "", "report", "delete", reportID)
	out = mustRun(t, "", "report", "list")
	assert.NotContains(t, out, reportID)

	mustRun(t, "", "transcripts", "delete", transcriptID)
	_, _, err = run(t, "", "transcripts", "show", transcriptID)
	assert.ErrorContains(t, err, "transcript not found")

	mustRun(t, "", "logout")
	_, _, err = run(t, "", "stats")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_ReportListPrunesForgottenReports(t *testing.T) {
	srv, _ := setupEnv(t)
	mustRun(t, cliUser.Password+"\n", "login", "--email", cliUser.Email)

	f := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(f, []byte("RIFF"), 0o644))
	fileID := idPattern.FindStringSubmatch(mustRun(t, "", "audio", "upload", f))[1]
	transcriptID := startedPattern.FindStringSubmatch(mustRun(t, "", "transcribe", fileID, "--wait"))[1]
	reportID := startedPattern.FindStringSubmatch(mustRun(t, "", "report", "generate", transcriptID, "Ringkaskan"))[1]

	require.True(t, srv.Forget(reportID))
	out := mustRun(t, "", "report", "list")
	assert.NotContains(t, out, reportID)
}

func TestCLI_Prompts(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "", "prompts", "list")
	assert.Contains(t, out, "summary")
	assert.Contains(t, out, prompts.MinutesName)

	mustRun(t, "", "prompts", "add", "keputusan", "Senaraikan keputusan sahaja.")
	out = mustRun(t, "", "prompts", "show", "keputusan")
	assert.Equal(t, "Senaraikan keputusan sahaja.\n", out)

	_, _, err := run(t, "", "prompts", "add", "keputusan", "lagi")
	assert.ErrorIs(t, err, prompts.ErrExists)

	mustRun(t, "", "prompts", "remove", "keputusan")
	_, _, err = run(t, "", "prompts", "show", "keputusan")
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestCLI_ConfigValidation(t *testing.T) {
	setupEnv(t)
	t.Setenv("MINUTES_MIRROR", "redis")

	_, _, err := run(t, "", "jobs")
	assert.ErrorContains(t, err, `mirror "redis"`)
}

func TestResolvePrompt(t *testing.T) {
	store := prompts.NewStore(filepath.Join(t.TempDir(), "prompts.yaml"))

	_, err := resolvePrompt(store, "", "", false)
	assert.Error(t, err)
	_, err = resolvePrompt(store, "text", "summary", false)
	assert.Error(t, err)

	got, err := resolvePrompt(store, "Ringkaskan", "", false)
	require.NoError(t, err)
	assert.Equal(t, "Ringkaskan", got)

	got, err = resolvePrompt(store, "", "actions", false)
	require.NoError(t, err)
	assert.Contains(t, got, "tindakan")

	got, err = resolvePrompt(store, "", "", true)
	require.NoError(t, err)
	assert.Contains(t, got, "KEHADIRAN")

	_, err = resolvePrompt(store, "", "nope", false)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "Minit Mac.docx", reportFileName("Minit Mac"))
	assert.Equal(t, "a_b_c.docx", reportFileName("a/b:c"))
	assert.Equal(t, "laporan.DOCX", reportFileName("laporan.DOCX"))
	assert.Equal(t, "report.docx", reportFileName("  "))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "3.0 MiB", formatSize(3*1024*1024))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Mesyuar...", truncate("Mesyuarat Agung", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestPasswordReader_Lines(t *testing.T) {
	var prompt bytes.Buffer
	r := newPasswordReader(strings.NewReader("first\r\nsecond"), &prompt)

	got, err := r.read("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = r.read("Confirm: ")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	_, err = r.read("Again: ")
	assert.Error(t, err)
	assert.Empty(t, prompt.String(), "no prompt without a terminal")
}
