package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/raphaelgruber/minutes-go/internal/notify"
)

// refreshInterval is how often the view re-reads the mirror. Polling the
// server is done by the synchronizers, not by the view.
const refreshInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers re-reading the mirror
type tickMsg time.Time

// recordsMsg carries the current records of all watched kinds
type recordsMsg struct {
	records []jobs.Record
	err     error
}

// watchModel is the bubbletea model for the live job view.
type watchModel struct {
	syncs    []*jobs.Synchronizer
	slot     *jobs.Slot
	only     map[string]bool
	seen     map[string]bool
	rows     []jobs.Record
	progress progress.Model
	theme    Theme
	loaded   bool
	done     bool
	quitting bool
	err      error
}

// newWatchModel creates a view over syncs. With ids, only those jobs are
// shown; otherwise every job in flight (and any that finish while watching).
func newWatchModel(syncs []*jobs.Synchronizer, slot *jobs.Slot, ids ...string) watchModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(30),
	)

	only := make(map[string]bool, len(ids))
	for _, id := range ids {
		only[id] = true
	}
	return watchModel{
		syncs:    syncs,
		slot:     slot,
		only:     only,
		seen:     make(map[string]bool),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (read the mirror).
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.loadRecords(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.loadRecords()

	case recordsMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to read jobs: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.loaded = true
		m.rows = m.selectRows(msg.records)
		if !anyInFlight(m.rows) {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// selectRows keeps the watched jobs in a stable order.
func (m watchModel) selectRows(records []jobs.Record) []jobs.Record {
	var rows []jobs.Record
	for _, r := range records {
		switch {
		case len(m.only) > 0:
			if !m.only[r.ID] {
				continue
			}
		case r.Status.InFlight():
			m.seen[r.ID] = true
		case !m.seen[r.ID]:
			continue
		}
		rows = append(rows, r)
	}
	return rows
}

func anyInFlight(rows []jobs.Record) bool {
	for _, r := range rows {
		if r.Status.InFlight() {
			return true
		}
	}
	return false
}

// View renders the progress display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m watchModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if !m.loaded {
		return "Loading jobs...\n"
	}

	var b strings.Builder
	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
		b.WriteByte('\n')
	}
	if n, ok := m.slot.Current(); ok {
		b.WriteString("\n" + notify.FormatLine(n) + "\n")
	}
	b.WriteString(m.theme.hintStyle().Render("Press q to stop watching; jobs keep running on the server"))
	b.WriteByte('\n')
	return b.String()
}

func (m watchModel) renderRow(r jobs.Record) string {
	title := padRight(truncate(r.Title, 28), 28)
	switch r.Status {
	case jobs.StatusCompleted:
		return m.theme.completedStyle().Render("✓ ") + title + " completed"
	case jobs.StatusError:
		return m.theme.errorStyle().Render("✗ ") + title + " " + r.Message
	}
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%-10s]", r.Status))
	return fmt.Sprintf("%s %s %s %3d%%", status, title, m.progress.ViewAs(float64(r.Progress)/100), r.Progress)
}

// finalView renders the summary after the view closes.
func (m watchModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nStopped watching. Run 'minutes watch' to resume following jobs.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}
	if len(m.rows) == 0 {
		return "No jobs in progress\n"
	}

	var b strings.Builder
	for _, r := range m.rows {
		switch r.Status {
		case jobs.StatusCompleted:
			b.WriteString(m.theme.completedStyle().Render("✓ Completed") + " " + r.Title + "\n")
			if r.Message != "" {
				b.WriteString(m.theme.hintStyle().Render("  "+r.Message) + "\n")
			}
		case jobs.StatusError:
			b.WriteString(m.theme.errorStyle().Render("✗ Failed") + " " + r.Title + ": " + r.Message + "\n")
		}
	}
	return b.String()
}

// failures returns the watched jobs that ended in error.
func (m watchModel) failures() []jobs.Record {
	var out []jobs.Record
	for _, r := range m.rows {
		if r.Status == jobs.StatusError {
			out = append(out, r)
		}
	}
	return out
}

// loadRecords reads every watched kind from the mirror.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m watchModel) loadRecords() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var all []jobs.Record
		for _, s := range m.syncs {
			records, err := s.Records(ctx)
			if err != nil {
				return recordsMsg{err: err}
			}
			all = append(all, records...)
		}
		return recordsMsg{records: all}
	}
}

// tickCmd returns a command that sends a tick after the refresh interval.
func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func padRight(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s
}

// runWatchView runs the interactive view until every watched job is
// terminal or the user quits. Failed jobs are returned as an error.
func runWatchView(syncs []*jobs.Synchronizer, slot *jobs.Slot, ids ...string) error {
	model := newWatchModel(syncs, slot, ids...)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	// Check final state
	if m, ok := finalModel.(watchModel); ok {
		// If user quit, jobs continue on the server - not an error
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
		if failed := m.failures(); len(ids) > 0 && len(failed) > 0 {
			return fmt.Errorf("job %s failed: %s", failed[0].ID, failed[0].Message)
		}
	}
	return nil
}
