package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/minutes-go/internal/jobs"
)

// Terminal prints one styled line per notification.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// Compile-time check that Terminal implements jobs.Notifier.
var _ jobs.Notifier = (*Terminal)(nil)

// NewTerminal creates a notifier writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
)

// Symbol returns the glyph and style used for a level.
func Symbol(l jobs.Level) (string, lipgloss.Style) {
	switch l {
	case jobs.LevelSuccess:
		return "✓", successStyle
	case jobs.LevelError:
		return "✗", errorStyle
	case jobs.LevelWarning:
		return "!", warningStyle
	default:
		return "•", infoStyle
	}
}

// Notify writes n as a single line.
func (t *Terminal) Notify(_ context.Context, n jobs.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, FormatLine(n))
}

// FormatLine renders n the way Terminal prints it.
func FormatLine(n jobs.Notification) string {
	sym, style := Symbol(n.Level)
	line := style.Render(sym + " " + n.Message)
	if n.Title != "" {
		line += " " + n.Title
	}
	return line + " " + dimStyle.Render("("+n.JobID+")")
}
