package audio_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/earsense/pkg/audio"
)

func TestPipe_InOrderThenEOF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := audio.NewPipe(audio.Mono16k, 4)
	s, err := p.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	src := []int16{1, 2, 3}
	if err := p.Write(ctx, src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	src[0] = 99 // the pipe holds a copy
	if err := p.Write(ctx, []int16{4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p.CloseWrite()

	first, _ := s.Read(ctx)
	second, _ := s.Read(ctx)
	if !slices.Equal(first, []int16{1, 2, 3}) || !slices.Equal(second, []int16{4}) {
		t.Errorf("chunks = %v %v", first, second)
	}
	if _, err := s.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
	if err := p.Write(ctx, []int16{5}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write after CloseWrite err = %v, want ErrClosedPipe", err)
	}
}

func TestPipe_SingleReader(t *testing.T) {
	t.Parallel()
	p := audio.NewPipe(audio.Mono16k, 1)
	if _, err := p.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err := p.Open(context.Background())
	if !errors.Is(err, audio.ErrPipeInUse) || !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("second Open err = %v", err)
	}
}

func TestPipe_CloseUnblocksReadAndWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := audio.NewPipe(audio.Mono16k, 1)
	s, _ := p.Open(ctx)

	readErr := make(chan error, 1)
	go func() {
		_, err := s.Read(ctx)
		readErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-readErr:
		if !errors.Is(err, audio.ErrClosed) {
			t.Errorf("Read err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
	if err := p.Write(ctx, []int16{1}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write err = %v, want ErrClosedPipe", err)
	}
}

func TestPipe_ReadHonoursContext(t *testing.T) {
	t.Parallel()
	p := audio.NewPipe(audio.Mono16k, 1)
	s, _ := p.Open(context.Background())
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want Canceled", err)
	}
}
