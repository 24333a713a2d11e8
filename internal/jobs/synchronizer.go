package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned when tracking is requested after Close.
var ErrClosed = errors.New("synchronizer closed")

// Options configures a Synchronizer. Zero values use the defaults.
type Options struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Blobs      BlobStore
	Notifier   Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// SweepReport summarizes what Open did.
type SweepReport struct {
	Kept    int
	Removed int
	Resumed int
}

// Synchronizer keeps one kind's local job records in step with the server.
// Open sweeps stale records and resumes polling; Track adds new jobs; Close
// stops every timer. Polling lives until Close, independent of the context
// passed to Open.
type Synchronizer struct {
	kind       Kind
	records    *Collection
	scheduler  *Scheduler
	reconciler *Reconciler
	logger     *slog.Logger
	now        func() time.Time
	staleAfter time.Duration

	// base parents every poller; only Close cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	opened bool
	closed bool
}

// NewSynchronizer wires the mirror, scheduler and reconciler for kind.
func NewSynchronizer(kind Kind, mirror Mirror, backend Backend, opts Options) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sync", "kind", kind)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	records := NewCollection(kind, mirror)
	records.now = now

	s := &Synchronizer{
		kind:       kind,
		records:    records,
		logger:     logger,
		now:        now,
		staleAfter: staleAfter,
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	s.scheduler = NewScheduler(opts.Interval, func(ctx context.Context, id string) {
		s.reconciler.Tick(ctx, id)
	})
	s.reconciler = NewReconciler(records, backend, opts.Blobs, opts.Notifier, s.scheduler, logger)
	s.reconciler.now = now
	return s
}

// Kind returns the job kind this synchronizer tracks.
func (s *Synchronizer) Kind() Kind {
	return s.kind
}

// Open discards stale in-flight records and resumes polling for the rest.
// ctx bounds the sweep only; polling runs until Close.
func (s *Synchronizer) Open(ctx context.Context) (SweepReport, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return SweepReport{}, ErrClosed
	}

	var removed []Record
	kept, err := s.records.Replace(ctx, func(records []Record) []Record {
		var kept []Record
		kept, removed = Sweep(records, s.now(), s.staleAfter)
		return kept
	})
	if err != nil {
		return SweepReport{}, fmt.Errorf("sweep %s: %w", s.kind.Collection(), err)
	}
	for _, r := range removed {
		s.logger.Info("discarded stale job record", "job_id", r.ID, "status", r.Status, "created_at", r.CreatedAt)
	}

	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()

	report := SweepReport{Kept: len(kept), Removed: len(removed)}
	for _, r := range kept {
		if r.Status.InFlight() {
			if !s.scheduler.Start(s.base, r.ID) {
				return report, ErrClosed
			}
			report.Resumed++
		}
	}
	s.logger.Debug("synchronizer opened", "kept", report.Kept, "removed", report.Removed, "resumed", report.Resumed)
	return report, nil
}

// Track stores rec and, once the synchronizer is open, starts polling it.
// Missing fields are defaulted: status pending, CreatedAt now.
func (s *Synchronizer) Track(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("track job: empty id")
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("track job %s: %w: %q", rec.ID, ErrUnknownStatus, rec.Status)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.Kind = s.kind

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := s.records.Put(ctx, rec); err != nil {
		return fmt.Errorf("track job %s: %w", rec.ID, err)
	}
	if rec.Status.InFlight() {
		s.startIfOpen(rec.ID)
	}
	return nil
}

// Records returns every mirrored record, oldest first.
func (s *Synchronizer) Records(ctx context.Context) ([]Record, error) {
	return s.records.All(ctx)
}

// Get returns the record for id.
func (s *Synchronizer) Get(ctx context.Context, id string) (Record, error) {
	return s.records.Get(ctx, id)
}

// UpdateText replaces the result text of a record, e.g. after a user edit.
func (s *Synchronizer) UpdateText(ctx context.Context, id, text string) (Record, error) {
	return s.records.Update(ctx, id, func(r *Record) bool {
		if r.ResultText == text {
			return false
		}
		r.ResultText = text
		return true
	})
}

// AttachBlob records ref as the cached result document of id.
func (s *Synchronizer) AttachBlob(ctx context.Context, id, ref string) (Record, error) {
	return s.records.Update(ctx, id, func(r *Record) bool {
		if r.ResultBlobRef == ref {
			return false
		}
		r.ResultBlobRef = ref
		return true
	})
}

// Remove stops polling id and deletes its record.
func (s *Synchronizer) Remove(ctx context.Context, id string) (bool, error) {
	s.scheduler.Stop(id)
	return s.records.Delete(ctx, id)
}

// MergeRemote folds a server-side listing into the mirror. Known in-flight
// records take the server's status and progress while that status is still
// in flight; a terminal status is left for the reconciler to apply so the
// result is fetched and the user notified. Unknown records are added. With
// prune, local records the server no longer lists are removed. Polling is
// started for in-flight entries when the synchronizer is open.
func (s *Synchronizer) MergeRemote(ctx context.Context, remote []Record, prune bool) ([]Record, error) {
	byID := make(map[string]Record, len(remote))
	for _, r := range remote {
		if r.ID != "" {
			byID[r.ID] = r
		}
	}

	merged, err := s.records.Replace(ctx, func(local []Record) []Record {
		out := make([]Record, 0, len(local)+len(remote))
		seen := make(map[string]bool, len(local))
		for _, l := range local {
			r, ok := byID[l.ID]
			if !ok {
				if !prune {
					out = append(out, l)
				}
				continue
			}
			seen[l.ID] = true
			if l.Status.InFlight() && r.Status.InFlight() {
				l.Status = r.Status
				l.Progress = clampProgress(r.Progress)
				l.UpdatedAt = s.now()
			}
			if l.Title == "" {
				l.Title = r.Title
			}
			out = append(out, l)
		}
		for _, r := range remote {
			if r.ID == "" || seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			r.Kind = s.kind
			if !r.Status.Valid() {
				r.Status = StatusPending
			}
			if r.CreatedAt.IsZero() {
				r.CreatedAt = s.now()
			}
			r.UpdatedAt = s.now()
			out = append(out, r)
		}
		return out
	})
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", s.kind.Collection(), err)
	}

	for _, r := range merged {
		if r.Status.InFlight() && !s.scheduler.Active(r.ID) {
			s.startIfOpen(r.ID)
		}
	}
	return merged, nil
}

// startIfOpen polls id once Open has run and until Close.
func (s *Synchronizer) startIfOpen(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened && !s.closed {
		s.scheduler.Start(s.base, id)
	}
}

// Polling reports whether id has an active poll timer.
func (s *Synchronizer) Polling(id string) bool {
	return s.scheduler.Active(id)
}

// Active returns the number of jobs currently being polled.
func (s *Synchronizer) Active() int {
	return s.scheduler.Len()
}

// Close stops all polling and waits for in-flight ticks to finish. No record
// is modified by this synchronizer after Close returns.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.scheduler.StopAll()
}
