package audio

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
)

// ErrPipeInUse is returned by [Pipe.Open] when the pipe already has a reader.
var ErrPipeInUse = errors.New("audio: pipe already opened")

// Pipe is a [Device] fed by a producer goroutine. Chunks passed to
// [Pipe.Write] come out of the single stream returned by [Pipe.Open] in
// order. [Pipe.CloseWrite] ends the stream with io.EOF once the buffered
// chunks are consumed.
type Pipe struct {
	format Format
	ch     chan []int16

	mu       sync.Mutex
	opened   bool
	wclosed  bool
	rclosed  bool
	done     chan struct{}
	doneOnce sync.Once
}

var _ Device = (*Pipe)(nil)

// NewPipe returns a pipe carrying format that buffers up to depth chunks.
func NewPipe(format Format, depth int) *Pipe {
	return &Pipe{
		format: format,
		ch:     make(chan []int16, max(depth, 1)),
		done:   make(chan struct{}),
	}
}

// Format returns the pipe's sample format.
func (p *Pipe) Format() Format { return p.format }

// Open implements [Device]. A pipe can be opened once.
func (p *Pipe) Open(_ context.Context) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return nil, unavailable("pipe", ErrPipeInUse)
	}
	p.opened = true
	return &pipeStream{p: p}, nil
}

// Write queues a copy of samples, blocking while the buffer is full. It
// returns io.ErrClosedPipe once either side has been closed.
func (p *Pipe) Write(ctx context.Context, samples []int16) error {
	p.mu.Lock()
	closed := p.wclosed || p.rclosed
	p.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	select {
	case p.ch <- slices.Clone(samples):
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseWrite signals the end of the stream. It is safe to call more than
// once but must not race with Write.
func (p *Pipe) CloseWrite() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wclosed {
		return
	}
	p.wclosed = true
	close(p.ch)
}

type pipeStream struct {
	p *Pipe
}

func (s *pipeStream) Format() Format { return s.p.format }

func (s *pipeStream) Read(ctx context.Context) ([]int16, error) {
	select {
	case chunk, ok := <-s.p.ch:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-s.p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *pipeStream) Close() error {
	s.p.mu.Lock()
	s.p.rclosed = true
	s.p.mu.Unlock()
	s.p.doneOnce.Do(func() { close(s.p.done) })
	return nil
}
