package audio_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/earsense/pkg/audio"
)

func writePCM(t *testing.T, n int) string {
	t.Helper()
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	path := filepath.Join(t.TempDir(), "in.pcm")
	if err := os.WriteFile(path, audio.EncodePCM(nil, samples), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileDevice_Missing(t *testing.T) {
	t.Parallel()
	dev := &audio.FileDevice{Path: filepath.Join(t.TempDir(), "nope.pcm")}
	_, err := dev.Open(context.Background())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want it to keep fs.ErrNotExist", err)
	}
}

func TestFileDevice_ReadsToEOF(t *testing.T) {
	t.Parallel()
	dev := &audio.FileDevice{Path: writePCM(t, 3000)}
	s, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Format() != audio.Mono16k {
		t.Errorf("Format = %v, want %v", s.Format(), audio.Mono16k)
	}
	var sizes []int
	for {
		chunk, err := s.Read(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		sizes = append(sizes, len(chunk))
	}
	if len(sizes) != 3 || sizes[0] != 1280 || sizes[2] != 440 {
		t.Errorf("chunk sizes = %v, want [1280 1280 440]", sizes)
	}
}

func TestFileDevice_CloseIdempotent(t *testing.T) {
	t.Parallel()
	dev := &audio.FileDevice{Path: writePCM(t, 100)}
	s, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.Read(context.Background()); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("Read after Close err = %v, want ErrClosed", err)
	}
}

func TestFileDevice_RealtimeHonoursContext(t *testing.T) {
	t.Parallel()
	// 16000 samples in one chunk is a one-second wait.
	dev := &audio.FileDevice{Path: writePCM(t, 16000), ChunkSamples: 16000, Realtime: true}
	s, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}
