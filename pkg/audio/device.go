// Package audio defines the interfaces and types for audio capture within
// EarSense.
//
// The two primary abstractions are:
//
//   - [Device] opens a capture source and returns a [Stream].
//   - [Stream] delivers consecutive chunks of signed 16-bit samples until it
//     is closed or the source ends.
//
// Implementations are provided in this package: [CaptureDevice] (a local
// microphone via miniaudio), [FileDevice] (raw PCM files) and [Pipe] (samples
// pushed by another goroutine, e.g. a WebSocket handler). The chunk size is
// whatever the source hands out; consumers must not assume a fixed value.
//
// This package lives under pkg/ because external code is expected to
// implement [Device] and [Stream].
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeviceUnavailable is returned by [Device.Open] when the capture source
// cannot be acquired: missing hardware, permission denied, a missing file.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// ErrClosed is returned by [Stream.Read] after [Stream.Close].
var ErrClosed = errors.New("audio: stream closed")

// Format describes the sample rate and channel count of a stream. Samples of
// multi-channel streams are interleaved.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono16k is the format the detection pipeline consumes.
var Mono16k = Format{SampleRate: 16000, Channels: 1}

// String returns e.g. "16000Hz mono".
func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// Valid reports whether both fields are positive.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

// Duration returns the play time of n interleaved samples in this format.
func (f Format) Duration(n int) time.Duration {
	if !f.Valid() {
		return 0
	}
	frames := n / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Stream is an open capture source.
//
// Read blocks until the next chunk is available, the context is cancelled or
// the source ends. A finite source returns io.EOF after its last chunk.
//
// Close releases the source. It is safe to call more than once; later calls
// return nil. Read and Close may be called from different goroutines.
type Stream interface {
	Read(ctx context.Context) ([]int16, error)
	Format() Format
	Close() error
}

// Device opens capture streams.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Open acquires the source. Failure to acquire it must be reported as an
	// error wrapping [ErrDeviceUnavailable]; a nil Stream with a nil error is
	// never returned.
	Open(ctx context.Context) (Stream, error)
}

func unavailable(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, what, err)
}
