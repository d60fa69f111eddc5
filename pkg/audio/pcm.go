package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// DecodePCM decodes little-endian 16-bit samples from b into dst (grown as
// needed) and returns it. A trailing odd byte is ignored.
func DecodePCM(dst []int16, b []byte) []int16 {
	n := len(b) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return dst
}

// EncodePCM appends the little-endian encoding of samples to dst.
func EncodePCM(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// PCMReader reads raw little-endian 16-bit PCM in chunks.
type PCMReader struct {
	r     *bufio.Reader
	chunk int
	buf   []byte
	odd   bool
}

// NewPCMReader returns a reader yielding chunks of chunkSamples samples.
func NewPCMReader(r io.Reader, chunkSamples int) *PCMReader {
	chunkSamples = max(chunkSamples, 1)
	return &PCMReader{
		r:     bufio.NewReaderSize(r, chunkSamples*2*4),
		chunk: chunkSamples,
		buf:   make([]byte, chunkSamples*2),
	}
}

// ReadChunk returns the next chunk. The final chunk may be shorter; after it
// io.EOF is returned. A dangling odd byte at the end is logged and dropped.
func (p *PCMReader) ReadChunk() ([]int16, error) {
	n, err := io.ReadFull(p.r, p.buf)
	switch {
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		if n%2 == 1 && !p.odd {
			p.odd = true
			slog.Warn("pcm reader: odd byte count, dropping trailing byte")
		}
		if n < 2 {
			return nil, io.EOF
		}
	case err != nil:
		return nil, fmt.Errorf("pcm reader: %w", err)
	}
	return DecodePCM(nil, p.buf[:n]), nil
}

// ReadPCMFile loads a whole raw PCM file.
func ReadPCMFile(path string) ([]int16, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodePCM(nil, b), nil
}

// PCMFileWriter streams samples into a temporary file that replaces path on
// [PCMFileWriter.Commit]. Until then the previous file, if any, stays intact.
type PCMFileWriter struct {
	f     *os.File
	w     *bufio.Writer
	path  string
	buf   []byte
	total int64
	done  bool
}

// CreatePCMFile starts writing a recording destined for path.
func CreatePCMFile(path string) (*PCMFileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pcm writer: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("pcm writer: %w", err)
	}
	return &PCMFileWriter{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Write appends samples.
func (w *PCMFileWriter) Write(samples []int16) error {
	w.buf = EncodePCM(w.buf[:0], samples)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("pcm writer: %w", err)
	}
	w.total += int64(len(samples))
	return nil
}

// Samples returns the number of samples written so far.
func (w *PCMFileWriter) Samples() int64 { return w.total }

// Commit flushes, syncs and renames the recording into place.
func (w *PCMFileWriter) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	name := w.f.Name()
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		os.Remove(name)
		return fmt.Errorf("pcm writer: flush: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(name)
		return fmt.Errorf("pcm writer: sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("pcm writer: close: %w", err)
	}
	if err := os.Rename(name, w.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("pcm writer: rename: %w", err)
	}
	return nil
}

// Abort discards the recording. It is a no-op after Commit.
func (w *PCMFileWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.f.Close()
	os.Remove(w.f.Name())
}
