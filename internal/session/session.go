// Package session runs one detector against one audio source.
//
// A [Session] owns its device stream and detector exclusively. Start opens
// the device and launches a single goroutine that reads, converts and
// processes chunks in arrival order and publishes the resulting events on
// [Session.Events]. Stop is idempotent and waits for the in-flight chunk to
// finish before the stream is released.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/audio"
)

// ErrNotStarted is returned by [Session.Wait] before [Session.Start].
var ErrNotStarted = errors.New("session: not started")

// ErrAlreadyStarted is returned by [Session.Start] on a session that was
// started or stopped before.
var ErrAlreadyStarted = errors.New("session: already started")

// State is the lifecycle phase of a session.
type State string

const (
	StateNew     State = "new"
	StateRunning State = "running"

	// StateEnded means the source ran out of audio.
	StateEnded   State = "ended"
	StateStopped State = "stopped"
	StateFailed  State = "failed"
)

// defaultBuffer is the capacity of the event channel.
const defaultBuffer = 64

// Config holds the dependencies of a [Session].
type Config struct {
	// ID identifies the session. A random UUID is used when empty.
	ID string

	// Profile is the training profile the detector was built for.
	Profile string

	// DeviceName labels device error metrics and logs.
	DeviceName string

	Device   audio.Device
	Detector detect.Detector

	// Format is the format the detector expects. Zero means audio.Mono16k.
	Format audio.Format

	// Buffer is the event channel capacity. Zero means 64.
	Buffer int

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
}

// Info is a snapshot of a session for listings.
type Info struct {
	ID        string      `json:"id"`
	Profile   string      `json:"profile"`
	Detector  detect.Kind `json:"detector"`
	Device    string      `json:"device"`
	State     State       `json:"state"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	Events    int64       `json:"events"`
	Error     string      `json:"error,omitempty"`
}

// Session is one recording session. Create it with [New].
type Session struct {
	cfg    Config
	events chan detect.Event
	done   chan struct{}

	mu        sync.Mutex
	state     State
	err       error
	startedAt time.Time
	stream    audio.Stream
	cancel    context.CancelFunc

	stopOnce sync.Once
	emitted  atomic.Int64
}

// New validates cfg and returns a session in [StateNew].
func New(cfg Config) (*Session, error) {
	if cfg.Device == nil {
		return nil, errors.New("session: device is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("session: detector is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if !cfg.Format.Valid() {
		cfg.Format = audio.Mono16k
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg:    cfg,
		events: make(chan detect.Event, cfg.Buffer),
		done:   make(chan struct{}),
		state:  StateNew,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.cfg.ID }

// Events returns the channel events are published on. It is closed when the
// session ends for any reason, including a failed Start.
func (s *Session) Events() <-chan detect.Event { return s.events }

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start opens the device and launches the processing goroutine. Failure to
// open the device is fatal: the session moves to [StateFailed], its event
// channel is closed and the error, wrapping [audio.ErrDeviceUnavailable], is
// returned.
//
// The goroutine runs until the source ends, ctx is cancelled or Stop is
// called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNew {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, s.cfg.ID)
	}

	stream, err := s.cfg.Device.Open(ctx)
	if err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
		}
		s.cfg.Metrics.RecordDeviceError(ctx, s.cfg.DeviceName)
		slog.Error("session: device unavailable",
			"session_id", s.cfg.ID,
			"device", s.cfg.DeviceName,
			"error", err,
		)
		s.state = StateFailed
		s.err = err
		close(s.events)
		close(s.done)
		return fmt.Errorf("session: start %s: %w", s.cfg.ID, err)
	}
	stream = audio.ConvertStream(stream, s.cfg.Format)

	runCtx, cancel := context.WithCancel(observe.WithScope(context.WithoutCancel(ctx), observe.Scope{
		Session:  s.cfg.ID,
		Profile:  s.cfg.Profile,
		Detector: string(s.cfg.Detector.Kind()),
	}))
	stop := context.AfterFunc(ctx, cancel)

	s.stream = stream
	s.cancel = cancel
	s.state = StateRunning
	s.startedAt = s.cfg.Now()

	s.cfg.Metrics.ActiveSessions.Add(ctx, 1, s.attrs())
	slog.Info("session started",
		"session_id", s.cfg.ID,
		"detector", s.cfg.Detector.Kind(),
		"profile", s.cfg.Profile,
		"device", s.cfg.DeviceName,
		"format", stream.Format(),
	)

	go func() {
		defer stop()
		s.run(runCtx, stream)
	}()
	return nil
}

// Stop stops accepting chunks, waits for the in-flight chunk, releases the
// stream and resets the detector. Calling it again, on a session that has
// already ended or on one that was never started is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateNew {
		s.state = StateStopped
		close(s.events)
		close(s.done)
		s.mu.Unlock()
		return
	}
	cancel, stream := s.cancel, s.stream
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	s.stopOnce.Do(func() {
		cancel()
		if err := stream.Close(); err != nil {
			slog.Warn("session: close stream", "session_id", s.cfg.ID, "error", err)
		}
	})
	<-s.done
}

// Wait blocks until the session ends or ctx is done. It returns the fatal
// error of the session, nil when it ended cleanly, or ctx.Err().
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateNew {
		return ErrNotStarted
	}
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the fatal error of the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.cfg.ID,
		Profile:   s.cfg.Profile,
		Detector:  s.cfg.Detector.Kind(),
		Device:    s.cfg.DeviceName,
		State:     s.state,
		StartedAt: s.startedAt,
		Events:    s.emitted.Load(),
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

func (s *Session) attrs() metric.MeasurementOption {
	return metric.WithAttributes(observe.Attr("detector", string(s.cfg.Detector.Kind())))
}

// run is the read-process-publish loop. It is the only goroutine touching the
// detector while the session is running.
func (s *Session) run(ctx context.Context, stream audio.Stream) {
	final := StateStopped
	var fatal error

	defer func() {
		// Close is idempotent; Stop may already have closed it.
		_ = stream.Close()
		s.cfg.Detector.Reset()

		s.mu.Lock()
		s.state = final
		s.err = fatal
		s.mu.Unlock()

		s.cfg.Metrics.ActiveSessions.Add(context.Background(), -1, s.attrs())
		slog.Info("session stopped",
			"session_id", s.cfg.ID,
			"state", final,
			"events", s.emitted.Load(),
		)
		close(s.events)
		close(s.done)
	}()

	kind := string(s.cfg.Detector.Kind())
	for {
		chunk, err := stream.Read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				final = StateEnded
			case ctx.Err() != nil, errors.Is(err, audio.ErrClosed):
				final = StateStopped
			default:
				final = StateFailed
				fatal = fmt.Errorf("session: read: %w", err)
				s.cfg.Metrics.RecordDeviceError(ctx, s.cfg.DeviceName)
				slog.Error("session: read failed",
					"session_id", s.cfg.ID,
					"device", s.cfg.DeviceName,
					"error", err,
				)
			}
			return
		}
		if len(chunk) == 0 {
			continue
		}

		start := time.Now()
		evs, err := s.cfg.Detector.Process(ctx, chunk)
		s.cfg.Metrics.ChunkDuration.Record(ctx, time.Since(start).Seconds(), s.attrs())
		if err != nil {
			slog.Warn("session: chunk not processed",
				"session_id", s.cfg.ID,
				"detector", kind,
				"error", err,
			)
		}

		for _, ev := range evs {
			ev.Time = s.cfg.Now()
			s.cfg.Metrics.RecordEvent(ctx, kind, ev.Name)
			select {
			case s.events <- ev:
				s.emitted.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}
}
