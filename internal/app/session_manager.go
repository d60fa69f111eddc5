package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/internal/session"
	"github.com/MrWong99/earsense/pkg/audio"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// ErrTooManySessions is returned by [SessionManager.Start] when the
// configured session limit is reached.
var ErrTooManySessions = errors.New("app: session limit reached")

// ErrShuttingDown is returned by [SessionManager.Start] after Close.
var ErrShuttingDown = errors.New("app: shutting down")

// journalTimeout bounds a single journal write.
const journalTimeout = 2 * time.Second

// StartRequest describes a session to start.
type StartRequest struct {
	// Profile selects the training data. Required for classifying detectors.
	Profile string

	Detector detect.Kind

	// Device is the audio source. The session owns it until it ends.
	Device audio.Device

	// DeviceName labels the device in logs, metrics and listings.
	DeviceName string
}

// SessionManager starts, tracks and stops detection sessions. Any number of
// sessions may run at once, bounded by MaxSessions.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	store       trainstore.Store
	searcher    VectorSearcher
	journal     Journal
	metrics     *observe.Metrics
	format      audio.Format
	maxSessions int

	mu        sync.Mutex
	detectors detect.Config
	pending   int
	closed    bool
	sessions  map[string]*Handle
	wg        sync.WaitGroup
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Store trainstore.Store

	// Searcher enables the pgvector classifier. Optional.
	Searcher VectorSearcher

	// Journal records every event. Optional.
	Journal Journal

	Detectors detect.Config

	// Format is the format detectors run at. Zero means audio.Mono16k.
	Format audio.Format

	// MaxSessions limits concurrent sessions. Zero means unlimited.
	MaxSessions int

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if !cfg.Format.Valid() {
		cfg.Format = audio.Mono16k
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &SessionManager{
		store:       cfg.Store,
		searcher:    cfg.Searcher,
		journal:     cfg.Journal,
		metrics:     cfg.Metrics,
		format:      cfg.Format,
		maxSessions: cfg.MaxSessions,
		detectors:   cfg.Detectors,
		sessions:    make(map[string]*Handle),
	}
}

// Handle is a running session as seen by its consumer.
type Handle struct {
	*session.Session

	events     chan detect.Event
	detached   chan struct{}
	detachOnce sync.Once
}

// Events returns the session's events. The channel is closed once the
// session has ended and every event was delivered or dropped by Stop.
func (h *Handle) Events() <-chan detect.Event { return h.events }

// Stop stops the session. Events not yet received are dropped.
func (h *Handle) Stop() {
	h.detachOnce.Do(func() { close(h.detached) })
	h.Session.Stop()
}

// SetDetectors replaces the detector configuration used by sessions started
// from now on. Running sessions keep theirs.
func (m *SessionManager) SetDetectors(cfg detect.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectors = cfg
}

// Detectors returns the current detector configuration.
func (m *SessionManager) Detectors() detect.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectors
}

// Start builds the requested detector, opens the device and starts a
// session. The session ends when ctx is cancelled, the source runs out or
// Stop is called.
func (m *SessionManager) Start(ctx context.Context, req StartRequest) (*Handle, error) {
	if !req.Detector.IsValid() {
		return nil, fmt.Errorf("%w: %q", detect.ErrUnknownKind, req.Detector)
	}
	if req.Detector != detect.Step {
		if err := trainstore.ValidateName(req.Profile); err != nil {
			return nil, fmt.Errorf("app: profile: %w", err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if m.maxSessions > 0 && len(m.sessions)+m.pending >= m.maxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (%d)", ErrTooManySessions, m.maxSessions)
	}
	m.pending++
	cfg := m.detectors
	m.mu.Unlock()

	h, err := m.start(ctx, req, cfg)

	m.mu.Lock()
	m.pending--
	if err == nil && m.closed {
		err = ErrShuttingDown
		defer h.Stop()
	}
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.sessions[h.ID()] = h
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.forward(h, req.Profile)
	}()
	return h, nil
}

func (m *SessionManager) start(ctx context.Context, req StartRequest, cfg detect.Config) (*Handle, error) {
	c, err := BuildClassifier(ctx, m.store, m.searcher, cfg, req.Detector, req.Profile)
	if err != nil {
		return nil, err
	}
	det, err := detect.New(req.Detector, cfg, m.format.SampleRate, c, detect.WithMetrics(m.metrics))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	s, err := session.New(session.Config{
		Profile:    req.Profile,
		DeviceName: req.DeviceName,
		Device:     req.Device,
		Detector:   det,
		Format:     m.format,
		Metrics:    m.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return &Handle{
		Session:  s,
		events:   make(chan detect.Event, 16),
		detached: make(chan struct{}),
	}, nil
}

// forward journals the session's events and hands them to the consumer.
func (m *SessionManager) forward(h *Handle, profile string) {
	defer func() {
		m.mu.Lock()
		delete(m.sessions, h.ID())
		m.mu.Unlock()
		close(h.events)
	}()

	for ev := range h.Session.Events() {
		if m.journal != nil {
			ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
			if err := m.journal.Append(ctx, journalEntry(h.ID(), profile, ev)); err != nil {
				slog.Warn("app: journal event", "session_id", h.ID(), "error", err)
			}
			cancel()
		}
		select {
		case h.events <- ev:
		case <-h.detached:
		}
	}
}

// Get returns the running session with the given id.
func (m *SessionManager) Get(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[id]
	return h, ok
}

// Stop stops the session with the given id and reports whether it was
// running. Stopping an unknown or finished session is a no-op.
func (m *SessionManager) Stop(id string) bool {
	h, ok := m.Get(id)
	if !ok {
		return false
	}
	h.Stop()
	return true
}

// Close refuses new sessions, then stops the running ones.
func (m *SessionManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.StopAll()
}

// StopAll stops every running session and waits for their events to be
// drained.
func (m *SessionManager) StopAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Go(h.Stop)
	}
	wg.Wait()
	m.wg.Wait()
}

// Active returns the number of running sessions.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns a snapshot of the running sessions, oldest first.
func (m *SessionManager) List() []session.Info {
	m.mu.Lock()
	infos := make([]session.Info, 0, len(m.sessions))
	for _, h := range m.sessions {
		infos = append(infos, h.Info())
	}
	m.mu.Unlock()

	slices.SortFunc(infos, func(a, b session.Info) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

