package dsp_test

import (
	"testing"

	"github.com/MrWong99/earsense/pkg/dsp"
)

func chunk(start, n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = float64(start + i)
	}
	return c
}

func TestWindow_EvictsWholeChunks(t *testing.T) {
	t.Parallel()

	w := dsp.NewWindow(10)
	w.Push(chunk(0, 4))
	w.Push(chunk(4, 4))
	if w.Len() != 8 {
		t.Fatalf("Len = %d, want 8", w.Len())
	}
	w.Push(chunk(8, 4)) // 12 > 10: the first chunk goes.
	if w.Len() != 8 {
		t.Fatalf("Len = %d, want 8", w.Len())
	}
	if w.Offset() != 4 {
		t.Errorf("Offset = %d, want 4", w.Offset())
	}
	got := w.Snapshot(nil)
	for i, v := range got {
		if v != float64(4+i) {
			t.Fatalf("snapshot[%d] = %v, want %v", i, v, float64(4+i))
		}
	}
}

func TestWindow_NeverExceedsLimit(t *testing.T) {
	t.Parallel()

	sizes := []int{3, 7, 1, 5, 9, 2, 8, 4, 6}
	w := dsp.NewWindow(16)
	next := 0
	for round := range 50 {
		n := sizes[round%len(sizes)]
		w.Push(chunk(next, n))
		next += n
		if w.Len() > w.Limit() {
			t.Fatalf("round %d: Len %d > limit %d", round, w.Len(), w.Limit())
		}
		snap := w.Snapshot(nil)
		if int64(len(snap))+w.Offset() != int64(next) {
			t.Fatalf("round %d: offset %d + len %d != pushed %d", round, w.Offset(), len(snap), next)
		}
		for i, v := range snap {
			if v != float64(w.Offset())+float64(i) {
				t.Fatalf("round %d: snapshot[%d] = %v out of order", round, i, v)
			}
		}
	}
}

func TestWindow_OversizedChunkKeepsNewest(t *testing.T) {
	t.Parallel()

	w := dsp.NewWindow(5)
	w.Push(chunk(0, 8))
	got := w.Snapshot(nil)
	if len(got) != 5 || got[0] != 3 || got[4] != 7 {
		t.Errorf("snapshot = %v, want [3 4 5 6 7]", got)
	}
	if w.Offset() != 3 {
		t.Errorf("Offset = %d, want 3", w.Offset())
	}
}

func TestWindow_Saturated(t *testing.T) {
	t.Parallel()

	// 3 s at 16 kHz with 1280-sample chunks saturates at 37 chunks.
	w := dsp.NewWindow(48000)
	var chunks int
	for !w.Saturated() {
		w.Push(make([]float64, 1280))
		chunks++
	}
	if chunks != 37 || w.Len() != 47360 {
		t.Errorf("saturated after %d chunks with %d samples, want 37 and 47360", chunks, w.Len())
	}
}

func TestWindow_MaxAndReset(t *testing.T) {
	t.Parallel()

	w := dsp.NewWindow(4)
	if w.Max() != 0 {
		t.Errorf("empty Max = %v, want 0", w.Max())
	}
	w.Push([]float64{1, 9, 3})
	w.Push([]float64{2, 4})
	if w.Max() != 4 {
		t.Errorf("Max = %v, want 4 after the 9 was evicted", w.Max())
	}
	w.Reset()
	if w.Len() != 0 || w.Offset() != 0 || w.Saturated() {
		t.Error("Reset did not clear the window")
	}
}

func TestStreamBuffer_AlignedWindows(t *testing.T) {
	t.Parallel()

	b := dsp.NewStreamBuffer(dsp.BufferConfig{
		Samples:    8,
		SampleRate: 16000,
		Filter:     dsp.FilterSpec{Kind: dsp.Lowpass, CutoffHz: 50},
	})
	for i := range 5 {
		b.Push([]int16{int16(i * 100), int16(i*100 + 1), int16(i*100 + 2)})
		raw := b.Raw(nil)
		filt := b.Filtered(nil)
		if len(raw) != len(filt) || len(raw) != b.Len() {
			t.Fatalf("push %d: raw %d, filtered %d, Len %d", i, len(raw), len(filt), b.Len())
		}
		if b.Len() > 8 {
			t.Fatalf("push %d: Len %d exceeds capacity", i, b.Len())
		}
	}
	if b.Offset() != 9 {
		t.Errorf("Offset = %d, want 9", b.Offset())
	}
}

func TestStreamBuffer_PerChunkResetsFilter(t *testing.T) {
	t.Parallel()

	spec := dsp.FilterSpec{Kind: dsp.Lowpass, CutoffHz: 50}
	cont := dsp.NewStreamBuffer(dsp.BufferConfig{Samples: 100, SampleRate: 16000, Filter: spec})
	per := dsp.NewStreamBuffer(dsp.BufferConfig{Samples: 100, SampleRate: 16000, Filter: spec, Mode: dsp.FilterPerChunk})

	in := []int16{1000, 1000, 1000, 1000}
	for range 2 {
		cont.Push(in)
		per.Push(in)
	}
	c := cont.Filtered(nil)
	p := per.Filtered(nil)
	if p[4] != p[0] {
		t.Errorf("per-chunk: second chunk starts at %v, want %v", p[4], p[0])
	}
	if c[4] <= c[3] {
		t.Errorf("continuous: second chunk should keep charging, got %v after %v", c[4], c[3])
	}
}
