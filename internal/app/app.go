// Package app wires the EarSense subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the training store and
// builds the session manager and HTTP surface, Run serves until ctx is
// cancelled, and Shutdown tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earsense/internal/config"
	"github.com/MrWong99/earsense/internal/health"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/internal/server"
	"github.com/MrWong99/earsense/internal/session"
	"github.com/MrWong99/earsense/pkg/audio"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// shutdownTimeout bounds the graceful HTTP shutdown in Run.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	stores   *Stores
	metrics  *observe.Metrics
	sessions *SessionManager
	health   *health.Handler
	server   *server.Server

	level      *slog.LevelVar
	configPath string
	watchEvery time.Duration

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a training store instead of opening the configured
// backend. The caller keeps ownership of s.
func WithStore(s trainstore.Store) Option {
	return func(a *App) { a.stores = &Stores{Store: s} }
}

// WithJournal records events to j. Only effective together with WithStore.
func WithJournal(j Journal) Option {
	return func(a *App) {
		if a.stores != nil {
			a.stores.Journal = j
		}
	}
}

// WithMetrics records to m instead of observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets config reloads change the log level held by lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigWatch makes Run watch path and apply changes as they appear.
// A zero interval uses the watcher default.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchEvery = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Training store ────────────────────────────────────────────────
	if a.stores == nil {
		st, err := OpenStore(ctx, cfg.Store, a.metrics)
		if err != nil {
			return nil, fmt.Errorf("app: init store: %w", err)
		}
		a.stores = st
		a.closers = append(a.closers, st.Store.Close)
	}

	// ── 2. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Store:       a.stores.Store,
		Searcher:    a.stores.Searcher,
		Journal:     a.stores.Journal,
		Detectors:   cfg.Detectors,
		Format:      audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: 1},
		MaxSessions: cfg.Server.MaxSessions,
		Metrics:     a.metrics,
	})

	// ── 3. Health ────────────────────────────────────────────────────────
	checks := []health.Checker{
		health.CapacityChecker(a.sessions.Active, cfg.Server.MaxSessions),
	}
	if p, ok := a.stores.Store.(health.Pinger); ok {
		checks = append(checks, health.StoreChecker(p))
	}
	if fs := a.stores.Fallback; fs != nil {
		checks = append(checks, health.BreakerChecker(fs.Status))
	}
	a.health = health.New(checks...)

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.server = server.New(server.Config{
		Sessions:   serverSessions{a.sessions},
		Datasets:   a.stores.Store,
		Health:     a.health,
		Metrics:    a.metrics,
		SampleRate: cfg.Audio.SampleRate,
	})

	return a, nil
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Store returns the training store.
func (a *App) Store() trainstore.Store { return a.stores.Store }

// Handler returns the HTTP handler serving the API, health and metrics.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and, when enabled, watches the
// config file. It blocks until ctx is cancelled or the listener fails and
// returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(c config.Change) {
			a.ApplyConfig(c.Old, c.New)
		}, config.WithInterval(a.watchEvery))
		if err != nil {
			return fmt.Errorf("app: watch config: %w", err)
		}
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("app running",
		"listen_addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
		"store", a.cfg.Store.Backend,
	)
	return g.Wait()
}

// ApplyConfig applies the hot-reloadable parts of a config change. Detector
// changes affect sessions started afterwards; settings that need a restart
// are logged.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.DetectorsChanged) > 0 {
		a.sessions.SetDetectors(new.Detectors)
		slog.Info("detector settings reloaded", "detectors", d.DetectorsChanged)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "settings", d.RestartRequired)
	}
	a.cfg = new
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops all sessions and closes the subsystems in reverse order. It
// is safe to call more than once; only the first call does work.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			a.sessions.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("app: stop sessions: %w", ctx.Err()))
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// ─── Adapters ────────────────────────────────────────────────────────────────

// serverSessions adapts a SessionManager to server.Sessions.
type serverSessions struct {
	m *SessionManager
}

func (s serverSessions) Open(ctx context.Context, req server.OpenRequest) (server.Stream, error) {
	h, err := s.m.Start(ctx, StartRequest{
		Profile:    req.Profile,
		Detector:   req.Detector,
		Device:     req.Device,
		DeviceName: req.DeviceName,
	})
	if errors.Is(err, ErrTooManySessions) {
		return nil, fmt.Errorf("%w: %w", server.ErrBusy, err)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s serverSessions) Stop(id string) bool { return s.m.Stop(id) }

func (s serverSessions) List() []session.Info { return s.m.List() }
