package dsp

// BufferConfig configures a [StreamBuffer].
type BufferConfig struct {
	// Samples is the window capacity in samples.
	Samples int

	// SampleRate is used to derive the filter coefficient.
	SampleRate int

	// Filter describes the filter producing the filtered view. A zero
	// CutoffHz keeps the filtered view identical to the raw one.
	Filter FilterSpec

	// Mode selects continuous or per-chunk filter state. Empty means
	// [FilterContinuous].
	Mode FilterMode
}

// StreamBuffer keeps two aligned windows over a stream: the raw samples and
// the same samples passed through a filter. Both windows always hold the same
// number of samples and evict the same chunks.
type StreamBuffer struct {
	raw      *Window
	filtered *Window
	filter   *Filter
	mode     FilterMode

	in  []float64
	out []float64
}

// NewStreamBuffer creates an empty stream buffer.
func NewStreamBuffer(cfg BufferConfig) *StreamBuffer {
	mode := cfg.Mode
	if !mode.IsValid() {
		mode = FilterContinuous
	}
	return &StreamBuffer{
		raw:      NewWindow(cfg.Samples),
		filtered: NewWindow(cfg.Samples),
		filter:   cfg.Filter.New(cfg.SampleRate),
		mode:     mode,
	}
}

// Push converts a PCM chunk to float samples and appends it to both windows.
func (b *StreamBuffer) Push(chunk []int16) {
	b.in = Int16ToFloat(b.in, chunk)
	b.PushFloat(b.in)
}

// PushFloat appends an already converted chunk to both windows.
func (b *StreamBuffer) PushFloat(chunk []float64) {
	if len(chunk) == 0 {
		return
	}
	if b.mode == FilterPerChunk {
		b.filter.Reset()
	}
	b.out = b.filter.Apply(b.out, chunk)
	b.raw.Push(chunk)
	b.filtered.Push(b.out)
}

// Len returns the number of samples held.
func (b *StreamBuffer) Len() int { return b.raw.Len() }

// Offset returns the absolute stream index of the oldest held sample.
func (b *StreamBuffer) Offset() int64 { return b.raw.Offset() }

// Saturated reports whether the next equally sized chunk would evict.
func (b *StreamBuffer) Saturated() bool { return b.raw.Saturated() }

// Raw copies the raw window into dst and returns it.
func (b *StreamBuffer) Raw(dst []float64) []float64 { return b.raw.Snapshot(dst) }

// Filtered copies the filtered window into dst and returns it.
func (b *StreamBuffer) Filtered(dst []float64) []float64 { return b.filtered.Snapshot(dst) }

// FilteredMax returns the maximum of the filtered window.
func (b *StreamBuffer) FilteredMax() float64 { return b.filtered.Max() }

// Reset clears both windows and the filter state.
func (b *StreamBuffer) Reset() {
	b.raw.Reset()
	b.filtered.Reset()
	b.filter.Reset()
}

// Int16ToFloat widens PCM samples into dst and returns it.
func Int16ToFloat(dst []float64, src []int16) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = float64(s)
	}
	return dst
}
