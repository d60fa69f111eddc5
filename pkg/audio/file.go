package audio

import (
	"context"
	"os"
	"sync"
	"time"
)

// FileDevice replays a raw little-endian 16-bit PCM file as a stream.
type FileDevice struct {
	// Path is the PCM file.
	Path string

	// Format of the file contents. Zero means [Mono16k].
	Format Format

	// ChunkSamples is the number of samples per Read. Zero means 1280.
	ChunkSamples int

	// Realtime paces reads to the audio duration of each chunk, as a
	// hardware source would.
	Realtime bool
}

var _ Device = (*FileDevice)(nil)

// Open implements [Device]. A missing or unreadable file is reported as
// [ErrDeviceUnavailable].
func (d *FileDevice) Open(_ context.Context) (Stream, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, unavailable(d.Path, err)
	}
	format := d.Format
	if !format.Valid() {
		format = Mono16k
	}
	chunk := d.ChunkSamples
	if chunk <= 0 {
		chunk = 1280
	}
	return &fileStream{
		f:        f,
		r:        NewPCMReader(f, chunk),
		format:   format,
		realtime: d.Realtime,
	}, nil
}

type fileStream struct {
	f        *os.File
	r        *PCMReader
	format   Format
	realtime bool
	next     time.Time

	mu     sync.Mutex
	closed bool
}

func (s *fileStream) Format() Format { return s.format }

func (s *fileStream) Read(ctx context.Context) ([]int16, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunk, err := s.r.ReadChunk()
	if err != nil {
		return nil, err
	}
	if s.realtime {
		if s.next.IsZero() {
			s.next = time.Now()
		}
		s.next = s.next.Add(s.format.Duration(len(chunk)))
		t := time.NewTimer(time.Until(s.next))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return chunk, nil
}

func (s *fileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
