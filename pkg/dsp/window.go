package dsp

// Window is a bounded FIFO of samples backed by a ring buffer.
//
// Samples enter in chunks and leave in whole chunks from the front: whenever
// the length exceeds the limit, the oldest chunk is evicted until it fits
// again. Eviction is O(1) amortised. The total number of evicted samples is
// tracked so that a window index can be mapped to an absolute stream position
// with [Window.Offset].
type Window struct {
	limit int

	ring []float64
	head int
	size int

	// chunk lengths, oldest first; chunks[:chunkHead] are already evicted.
	chunks    []int
	chunkHead int

	evicted int64
}

// NewWindow returns an empty window that holds at most limit samples.
func NewWindow(limit int) *Window {
	if limit < 1 {
		limit = 1
	}
	return &Window{limit: limit}
}

// Limit returns the maximum number of samples the window retains.
func (w *Window) Limit() int { return w.limit }

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.size }

// Offset returns the absolute stream index of the oldest held sample, which
// equals the number of samples evicted so far.
func (w *Window) Offset() int64 { return w.evicted }

// Push appends chunk and evicts whole chunks from the front until the window
// is back within its limit. A single chunk longer than the limit is the only
// case where a partial chunk is dropped: only its newest limit samples stay.
func (w *Window) Push(chunk []float64) {
	if len(chunk) == 0 {
		return
	}
	w.grow(w.size + len(chunk))
	for _, x := range chunk {
		w.ring[(w.head+w.size)%len(w.ring)] = x
		w.size++
	}
	w.chunks = append(w.chunks, len(chunk))

	for w.size > w.limit {
		live := len(w.chunks) - w.chunkHead
		if live <= 1 {
			w.drop(w.size - w.limit)
			w.chunks[w.chunkHead] = w.size
			break
		}
		n := w.chunks[w.chunkHead]
		w.chunkHead++
		w.drop(n)
	}
	w.compactChunks()
}

// Saturated reports whether pushing another chunk as long as the most recent
// one would force an eviction. Detectors use it as "the window is full".
func (w *Window) Saturated() bool {
	if w.chunkHead >= len(w.chunks) {
		return false
	}
	last := w.chunks[len(w.chunks)-1]
	return w.size+last > w.limit
}

// At returns the i-th oldest sample. It panics when i is out of range, like a
// slice index.
func (w *Window) At(i int) float64 {
	if i < 0 || i >= w.size {
		panic("dsp: window index out of range")
	}
	return w.ring[(w.head+i)%len(w.ring)]
}

// Snapshot copies the held samples, oldest first, into dst (grown as needed)
// and returns it.
func (w *Window) Snapshot(dst []float64) []float64 {
	if cap(dst) < w.size {
		dst = make([]float64, w.size)
	}
	dst = dst[:w.size]
	if w.size == 0 {
		return dst
	}
	end := w.head + w.size
	if end <= len(w.ring) {
		copy(dst, w.ring[w.head:end])
		return dst
	}
	n := copy(dst, w.ring[w.head:])
	copy(dst[n:], w.ring[:end-len(w.ring)])
	return dst
}

// Max returns the largest held sample, or 0 for an empty window.
func (w *Window) Max() float64 {
	if w.size == 0 {
		return 0
	}
	m := w.At(0)
	for i := 1; i < w.size; i++ {
		if v := w.ring[(w.head+i)%len(w.ring)]; v > m {
			m = v
		}
	}
	return m
}

// Reset empties the window and clears the evicted offset.
func (w *Window) Reset() {
	w.head = 0
	w.size = 0
	w.chunks = w.chunks[:0]
	w.chunkHead = 0
	w.evicted = 0
}

func (w *Window) drop(n int) {
	if n > w.size {
		n = w.size
	}
	if len(w.ring) > 0 {
		w.head = (w.head + n) % len(w.ring)
	}
	w.size -= n
	w.evicted += int64(n)
}

// grow makes sure the ring can hold need samples, linearising the content.
func (w *Window) grow(need int) {
	if need <= len(w.ring) {
		return
	}
	ring := make([]float64, max(len(w.ring)*2, need, w.limit))
	w.Snapshot(ring)
	w.ring = ring
	w.head = 0
}

func (w *Window) compactChunks() {
	if w.chunkHead > 64 && w.chunkHead*2 > len(w.chunks) {
		n := copy(w.chunks, w.chunks[w.chunkHead:])
		w.chunks = w.chunks[:n]
		w.chunkHead = 0
	}
}
