package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a short-lived message about a job transition.
type Notification struct {
	JobID   string
	Kind    Kind
	Title   string
	Level   Level
	Message string
	At      time.Time
}

// Notifier surfaces job transitions to the user. Implementations must not
// block for long and report their own delivery failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Fanout delivers every notification to each notifier in order.
type Fanout []Notifier

// Notify forwards n to every non-nil notifier.
func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, nt := range f {
		if nt != nil {
			nt.Notify(ctx, n)
		}
	}
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at a level matching its severity.
func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelError:
		level = slog.LevelError
	case LevelWarning:
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, n.Message, "job_id", n.JobID, "kind", n.Kind, "title", n.Title)
}

// Slot holds the most recent notification until it is dismissed or expires.
// A newer notification replaces the visible one.
type Slot struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	current *Notification
	count   int
}

// NewSlot creates a slot whose notifications expire after ttl (0 keeps them
// until dismissed).
func NewSlot(ttl time.Duration) *Slot {
	return &Slot{ttl: ttl, now: time.Now}
}

// Notify replaces the visible notification.
func (s *Slot) Notify(_ context.Context, n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.At.IsZero() {
		n.At = s.now()
	}
	s.current = &n
	s.count++
}

// Current returns the visible notification, if any.
func (s *Slot) Current() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Notification{}, false
	}
	if s.ttl > 0 && s.now().Sub(s.current.At) > s.ttl {
		s.current = nil
		return Notification{}, false
	}
	return *s.current, true
}

// Dismiss clears the visible notification.
func (s *Slot) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Count returns how many notifications the slot has received.
func (s *Slot) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
