package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/config"
	"github.com/raphaelgruber/minutes-go/internal/db"
	"github.com/raphaelgruber/minutes-go/internal/jobs"
	"github.com/raphaelgruber/minutes-go/internal/metrics"
	"github.com/raphaelgruber/minutes-go/internal/notify"
	"github.com/raphaelgruber/minutes-go/internal/prompts"
	"github.com/raphaelgruber/minutes-go/internal/state"
)

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in: run 'minutes login' first")

// app wires the client, local state and job synchronizers for one
// invocation. The SurrealDB mirror and the synchronizers are created on first
// use so that commands which never touch jobs never connect.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	client  *client.Client
	metrics *metrics.Collector

	sessions *state.SessionStore
	audio    *state.AudioLibrary
	prompts  *prompts.Store
	blobs    jobs.BlobStore
	chat     jobs.Fanout

	mu        sync.Mutex
	mirror    jobs.Mirror
	dbClient  *db.Client
	syncs     map[jobs.Kind]*jobs.Synchronizer
	listeners []jobs.Notifier
}

func newApp(_ context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	m := metrics.NewCollector()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		client:   client.NewWithHTTPClient(cfg.ServerURL, &http.Client{Timeout: cfg.ClientTimeout}).WithMetrics(m),
		sessions: state.NewSessionStore(cfg.SessionFile()),
		audio:    state.NewAudioLibrary(cfg.AudioFile()),
		prompts:  prompts.NewStore(cfg.PromptsFile),
		blobs:    jobs.NewDirBlobs(cfg.BlobDir()),
		syncs:    make(map[jobs.Kind]*jobs.Synchronizer),
	}

	sess, err := a.sessions.Load()
	switch {
	case err == nil:
		a.client.SetToken(sess.Token)
	case !errors.Is(err, state.ErrNoSession):
		logger.Warn("ignoring unreadable session", "error", err)
	}

	if cfg.SlackToken != "" {
		s, err := notify.NewSlack(cfg.SlackToken, cfg.SlackChannel, logger)
		if err != nil {
			return nil, err
		}
		a.chat = append(a.chat, s)
	}
	if cfg.DiscordToken != "" {
		d, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannel, logger)
		if err != nil {
			return nil, err
		}
		a.chat = append(a.chat, d)
	}
	return a, nil
}

// requireLogin fails fast when no token is available.
func (a *app) requireLogin() error {
	if a.client.Token() == "" {
		return errNotLoggedIn
	}
	return nil
}

// listen adds n to the notifiers every synchronizer reports to.
func (a *app) listen(n jobs.Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, n)
}

// Notify implements jobs.Notifier by fanning out to the log, the chat
// channels and any listeners registered by the running command.
func (a *app) Notify(ctx context.Context, n jobs.Notification) {
	a.mu.Lock()
	listeners := append(jobs.Fanout(nil), a.listeners...)
	a.mu.Unlock()

	jobs.LogNotifier{Logger: a.logger}.Notify(ctx, n)
	a.chat.Notify(ctx, n)
	listeners.Notify(ctx, n)
}

// getMirror returns the configured mirror, connecting to SurrealDB if needed.
func (a *app) getMirror(ctx context.Context) (jobs.Mirror, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mirror != nil {
		return a.mirror, nil
	}

	if a.cfg.Mirror != config.MirrorSurrealDB {
		a.mirror = jobs.NewFileMirror(a.cfg.MirrorDir(), a.logger)
		return a.mirror, nil
	}

	c, err := db.NewClient(ctx, db.Config{
		URL:       a.cfg.SurrealDBURL,
		Namespace: a.cfg.SurrealDBNamespace,
		Database:  a.cfg.SurrealDBDatabase,
		Username:  a.cfg.SurrealDBUser,
		Password:  a.cfg.SurrealDBPass,
		AuthLevel: a.cfg.SurrealDBAuthLevel,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := c.InitSchema(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	a.dbClient = c
	a.mirror = db.NewMirror(c, a.logger)
	return a.mirror, nil
}

// synchronizer returns the synchronizer for kind. It is not opened; callers
// that want polling call Open.
func (a *app) synchronizer(ctx context.Context, kind jobs.Kind) (*jobs.Synchronizer, error) {
	mirror, err := a.getMirror(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.syncs[kind]; ok {
		return s, nil
	}
	s := jobs.NewSynchronizer(kind, mirror, jobs.NewAPIBackend(a.client), jobs.Options{
		Interval:   a.cfg.PollInterval,
		StaleAfter: a.cfg.StaleAfter,
		Blobs:      a.blobs,
		Notifier:   a,
		Logger:     a.logger,
	})
	a.syncs[kind] = s
	return s, nil
}

// Close stops all polling and releases the database connection.
func (a *app) Close(ctx context.Context) error {
	a.mu.Lock()
	syncs := make([]*jobs.Synchronizer, 0, len(a.syncs))
	for _, s := range a.syncs {
		syncs = append(syncs, s)
	}
	dbClient := a.dbClient
	a.mu.Unlock()

	for _, s := range syncs {
		s.Close()
	}
	if dbClient != nil {
		if err := dbClient.Close(ctx); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}
	return nil
}
