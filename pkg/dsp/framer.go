package dsp

// Frame is one analysis frame cut from a stream.
type Frame struct {
	// Start is the absolute stream index of Samples[0].
	Start   int64
	Samples []float64
}

// Framer cuts a stream into fixed-size frames that advance by a fixed hop.
// A hop smaller than the size produces overlapping frames.
type Framer struct {
	size int
	hop  int

	pending []float64
	start   int64
}

// NewFramer returns a framer producing frames of size samples every hop
// samples. A hop outside 1..size is clamped into that range.
func NewFramer(size, hop int) *Framer {
	if size < 1 {
		size = 1
	}
	hop = min(max(hop, 1), size)
	return &Framer{size: size, hop: hop}
}

// Size returns the frame length.
func (f *Framer) Size() int { return f.size }

// Hop returns the frame advance.
func (f *Framer) Hop() int { return f.hop }

// Push appends chunk and returns every frame completed by it, oldest first.
// Returned sample slices are owned by the caller.
func (f *Framer) Push(chunk []float64) []Frame {
	f.pending = append(f.pending, chunk...)
	var frames []Frame
	for len(f.pending) >= f.size {
		s := make([]float64, f.size)
		copy(s, f.pending)
		frames = append(frames, Frame{Start: f.start, Samples: s})
		f.pending = f.pending[f.hop:]
		f.start += int64(f.hop)
	}
	if cap(f.pending) > 4*f.size && len(f.pending) < f.size {
		f.pending = append(make([]float64, 0, 2*f.size), f.pending...)
	}
	return frames
}

// Reset drops pending samples and restarts stream indexing at zero.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
	f.start = 0
}
