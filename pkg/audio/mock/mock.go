// Package mock provides in-memory mock implementations of the [audio.Device]
// and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	stream := &mock.Stream{Chunks: [][]int16{{1, 2, 3}, {4, 5, 6}}}
//	dev := &mock.Device{OpenResult: stream}
//	s, err := dev.Open(ctx)
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/earsense/pkg/audio"
)

// ─── Stream ──────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. It replays Chunks in
// order, then returns EndErr (io.EOF when nil), or blocks until the context
// is cancelled or the stream closed when BlockAtEnd is set.
type Stream struct {
	mu sync.Mutex

	// Chunks are returned by successive Read calls.
	Chunks [][]int16

	// FormatResult is returned by Format. Zero means audio.Mono16k.
	FormatResult audio.Format

	// EndErr is returned once Chunks are exhausted. Nil means io.EOF.
	EndErr error

	// BlockAtEnd makes Read block after the last chunk instead of failing.
	BlockAtEnd bool

	// CloseError is returned by Close.
	CloseError error

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next   int
	closed chan struct{}
	once   sync.Once
}

func (s *Stream) closedCh() chan struct{} {
	s.once.Do(func() { s.closed = make(chan struct{}) })
	return s.closed
}

// Read implements [audio.Stream].
func (s *Stream) Read(ctx context.Context) ([]int16, error) {
	closed := s.closedCh()
	s.mu.Lock()
	s.CallCountRead++
	if s.CallCountClose > 0 {
		s.mu.Unlock()
		return nil, audio.ErrClosed
	}
	if s.next < len(s.Chunks) {
		c := s.Chunks[s.next]
		s.next++
		s.mu.Unlock()
		return c, nil
	}
	block, end := s.BlockAtEnd, s.EndErr
	s.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-closed:
			return nil, audio.ErrClosed
		}
	}
	if end == nil {
		end = io.EOF
	}
	return nil, end
}

// Format implements [audio.Stream].
func (s *Stream) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.FormatResult.Valid() {
		return audio.Mono16k
	}
	return s.FormatResult
}

// Close implements [audio.Stream]. Every call is counted; only the first
// unblocks pending reads.
func (s *Stream) Close() error {
	closed := s.closedCh()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CallCountClose == 0 {
		close(closed)
	}
	s.CallCountClose++
	return s.CloseError
}

// Closes returns CallCountClose. Thread-safe.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

// Ensure Stream implements audio.Stream at compile time.
var _ audio.Stream = (*Stream)(nil)

// ─── Device ──────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// OpenResult is the stream returned by Open.
	OpenResult audio.Stream

	// OpenError is the error returned by Open.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int
}

// Open implements [audio.Device]. Records the call and returns OpenResult /
// OpenError.
func (d *Device) Open(_ context.Context) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpen++
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	return d.OpenResult, nil
}

// Opens returns CallCountOpen. Thread-safe.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountOpen
}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)
