package jobs

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultPollInterval is the fixed delay between status requests for one job.
const DefaultPollInterval = time.Second

// TickFunc is invoked once per interval for a polled job id. The context is
// cancelled when polling for that id stops.
type TickFunc func(ctx context.Context, id string)

// poller is the handle for one polling goroutine.
type poller struct {
	cancel context.CancelFunc
}

// Scheduler owns at most one repeating timer per job id.
type Scheduler struct {
	interval time.Duration
	tick     TickFunc

	mu      sync.Mutex
	pollers map[string]*poller
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler that calls tick every interval for each
// started id. A non-positive interval uses DefaultPollInterval.
func NewScheduler(interval time.Duration, tick TickFunc) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		interval: interval,
		tick:     tick,
		pollers:  make(map[string]*poller),
	}
}

// Interval returns the configured poll interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins polling id. An existing timer for id is cancelled first, so
// calling Start twice restarts the schedule instead of doubling it. Start
// reports false once StopAll has been called.
func (s *Scheduler) Start(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	if old, ok := s.pollers[id]; ok {
		old.cancel()
		delete(s.pollers, id)
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &poller{cancel: cancel}
	s.pollers[id] = p

	s.wg.Add(1)
	go s.run(pctx, id, p)
	return true
}

func (s *Scheduler) run(ctx context.Context, id string, p *poller) {
	defer s.wg.Done()
	defer s.forget(id, p)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop may race with the ticker; don't tick a cancelled poller.
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx, id)
		}
	}
}

// forget drops p from the map if it is still the registered poller for id.
func (s *Scheduler) forget(id string, p *poller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.pollers[id]; ok && cur == p {
		delete(s.pollers, id)
	}
}

// Stop cancels polling for id. It does not wait for an in-flight tick, so it
// is safe to call from inside that tick.
func (s *Scheduler) Stop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pollers[id]; ok {
		p.cancel()
		delete(s.pollers, id)
	}
}

// StopAll cancels every timer and waits for all polling goroutines to exit.
// Later calls to Start are refused. It must not be called from within a tick.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.stopped = true
	for id, p := range s.pollers {
		p.cancel()
		delete(s.pollers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Active reports whether id currently has a timer.
func (s *Scheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pollers[id]
	return ok
}

// Len returns the number of active timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pollers)
}

// IDs returns the ids with an active timer, sorted.
func (s *Scheduler) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pollers))
	for id := range s.pollers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
