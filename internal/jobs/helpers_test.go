package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// testLogger discards output; failures are asserted, not read from logs.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend answers status and result requests from in-memory tables.
type fakeBackend struct {
	mu          sync.Mutex
	updates     map[string]Update
	statusErrs  map[string]error
	results     map[string]Result
	resultErr   error
	statusCalls map[string]int
	resultCalls map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		updates:     make(map[string]Update),
		statusErrs:  make(map[string]error),
		results:     make(map[string]Result),
		statusCalls: make(map[string]int),
		resultCalls: make(map[string]int),
	}
}

func (b *fakeBackend) set(id string, upd Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.statusErrs, id)
	b.updates[id] = upd
}

func (b *fakeBackend) fail(id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusErrs[id] = err
}

func (b *fakeBackend) setResult(id string, res Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[id] = res
}

func (b *fakeBackend) Status(_ context.Context, _ Kind, id string) (Update, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls[id]++
	if err, ok := b.statusErrs[id]; ok {
		return Update{}, err
	}
	upd, ok := b.updates[id]
	if !ok {
		return Update{Status: StatusPending}, nil
	}
	return upd, nil
}

func (b *fakeBackend) Result(_ context.Context, _ Kind, id string) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resultCalls[id]++
	if b.resultErr != nil {
		return Result{}, b.resultErr
	}
	return b.results[id], nil
}

func (b *fakeBackend) resultCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resultCalls[id]
}

// recorder collects notifications.
type recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

// stopRecorder counts Stop calls per id.
type stopRecorder struct {
	mu    sync.Mutex
	stops map[string]int
}

func (s *stopRecorder) Stop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stops == nil {
		s.stops = make(map[string]int)
	}
	s.stops[id]++
}

func (s *stopRecorder) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops[id]
}

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }
