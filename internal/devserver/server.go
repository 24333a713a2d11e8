// Package devserver is an in-memory stand-in for the transcription and
// minutes service. Jobs advance by a fixed step on every progress poll, which
// makes the client and the synchronizer easy to exercise end to end.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/raphaelgruber/minutes-go/internal/client"
)

// DefaultStep is the progress added per poll when Options.Step is unset.
const DefaultStep = 20

// Options configures a Server.
type Options struct {
	// Step is the progress gained per status poll.
	Step int
	// Users are registered before the server starts.
	Users  []client.RegisterInput
	Logger *slog.Logger
	Now    func() time.Time
}

type user struct {
	client.RegisterInput
	CreatedAt time.Time
	LastLogin time.Time
}

type audio struct {
	ID    string
	Name  string
	Size  int64
	Owner string
}

type job struct {
	ID        string
	Title     string
	Owner     string
	Status    string
	Progress  int
	Message   string
	Source    string
	Prompt    string
	Text      string
	CreatedAt time.Time
	failed    bool
}

// Server holds all service state in memory.
type Server struct {
	step   int
	logger *slog.Logger
	now    func() time.Time

	mu             sync.Mutex
	users          map[string]*user // by username
	tokens         map[string]string
	audio          map[string]*audio
	transcriptions map[string]*job
	reports        map[string]*job
}

// New creates a server. Seed users that fail validation are reported as an
// error.
func New(opts Options) (*Server, error) {
	s := &Server{
		step:           opts.Step,
		logger:         opts.Logger,
		now:            opts.Now,
		users:          make(map[string]*user),
		tokens:         make(map[string]string),
		audio:          make(map[string]*audio),
		transcriptions: make(map[string]*job),
		reports:        make(map[string]*job),
	}
	if s.step <= 0 {
		s.step = DefaultStep
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	for _, in := range opts.Users {
		if _, err := s.register(in); err != nil {
			return nil, fmt.Errorf("seed user %q: %w", in.Username, err)
		}
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))
	s.registerRoutes(router)
	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server forced to shutdown", "error", err)
		}
	}()

	s.logger.Info("dev server listening", "addr", addr, "step", s.step)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}

// Forget drops a job of either kind so that later lookups answer 404.
func (s *Server) Forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.transcriptions[id]
	_, r := s.reports[id]
	delete(s.transcriptions, id)
	delete(s.reports, id)
	return t || r
}

// Fail makes the job's next progress poll report an error.
func (s *Server) Fail(id, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.transcriptions[id]
	if j == nil {
		j = s.reports[id]
	}
	if j == nil {
		return false
	}
	j.failed = true
	j.Message = message
	return true
}

// register validates in and stores the account. Callers must not hold mu.
func (s *Server) register(in client.RegisterInput) (*user, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[in.Username]; ok {
		return nil, errUsernameTaken
	}
	for _, u := range s.users {
		if u.Email == in.Email {
			return nil, errEmailTaken
		}
	}
	u := &user{RegisterInput: in, CreatedAt: s.now()}
	s.users[in.Username] = u
	return u, nil
}

var (
	errUsernameTaken = errors.New("Username already registered")
	errEmailTaken    = errors.New("Email already registered")
)

func newID() string {
	return uuid.NewString()
}

// advance moves j one step forward and returns its wire status.
func (s *Server) advance(j *job, processing string) {
	switch {
	case j.failed:
		j.Status = "error"
	case j.Status == "completed" || j.Status == "error":
	case j.Status == "pending":
		j.Status = processing
		j.Progress = min(s.step, 99)
	default:
		j.Progress += s.step
		if j.Progress >= 100 {
			j.Progress = 100
			j.Status = "completed"
			j.Message = ""
		}
	}
}
