// Package dsp contains the streaming signal-processing primitives used by the
// EarSense detectors: single-pole RC filters, rolling sample windows, peak
// detection with debounce, segment extraction around events and the scalar and
// spectral features computed from those segments.
//
// Nothing in this package blocks or allocates goroutines. Types that keep state
// ([Filter], [Window], [StreamBuffer], [Framer], [Deduper]) are owned by exactly
// one detector and are not safe for concurrent use.
package dsp

import (
	"fmt"
	"math"
)

// FilterKind selects the response of a [Filter].
type FilterKind int

const (
	// Lowpass passes slow envelope changes and attenuates above the cutoff.
	Lowpass FilterKind = iota

	// Highpass removes the slow envelope and keeps content above the cutoff.
	Highpass
)

// String returns the lower-case name of the filter kind.
func (k FilterKind) String() string {
	switch k {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

// FilterMode controls how a [StreamBuffer] treats filter state across chunks.
type FilterMode string

const (
	// FilterContinuous keeps one filter running across every pushed chunk.
	FilterContinuous FilterMode = "continuous"

	// FilterPerChunk resets the filter to zero state before each chunk.
	FilterPerChunk FilterMode = "per_chunk"
)

// IsValid reports whether m is a recognised filter mode.
func (m FilterMode) IsValid() bool {
	return m == FilterContinuous || m == FilterPerChunk
}

// Filter is a first-order RC filter evaluated one sample at a time.
//
// With rc = 1/(2π·cutoff) and dt = 1/sampleRate the low-pass output follows
//
//	y[n] = α·x[n] + (1-α)·y[n-1],  α = dt/(rc+dt)
//
// and the high-pass output is the complementary difference form
//
//	y[n] = β·(y[n-1] + x[n] - x[n-1]),  β = rc/(rc+dt) = 1-α
//
// A freshly created or [Filter.Reset] filter starts from zero state.
type Filter struct {
	kind   FilterKind
	cutoff float64
	rate   int
	alpha  float64
	pass   bool

	prevIn  float64
	prevOut float64
}

// NewFilter returns a filter for the given cutoff frequency and sample rate.
// A non-positive cutoff or sample rate yields a pass-through filter.
func NewFilter(kind FilterKind, cutoffHz float64, sampleRate int) *Filter {
	f := &Filter{kind: kind, cutoff: cutoffHz, rate: sampleRate, alpha: 1, pass: true}
	if cutoffHz > 0 && sampleRate > 0 {
		f.pass = false
		rc := 1 / (2 * math.Pi * cutoffHz)
		dt := 1 / float64(sampleRate)
		f.alpha = dt / (rc + dt)
	}
	return f
}

// Kind returns the filter response type.
func (f *Filter) Kind() FilterKind { return f.kind }

// Cutoff returns the configured cutoff frequency in Hz.
func (f *Filter) Cutoff() float64 { return f.cutoff }

// Alpha returns the smoothing coefficient dt/(rc+dt).
func (f *Filter) Alpha() float64 { return f.alpha }

// Update feeds one sample through the filter and returns the new output.
func (f *Filter) Update(x float64) float64 {
	var y float64
	switch {
	case f.pass:
		y = x
	case f.kind == Highpass:
		y = (1 - f.alpha) * (f.prevOut + x - f.prevIn)
	default:
		y = f.alpha*x + (1-f.alpha)*f.prevOut
	}
	f.prevIn = x
	f.prevOut = y
	return y
}

// Reset clears the filter memory so the next sample is processed as if the
// filter had just been created.
func (f *Filter) Reset() {
	f.prevIn = 0
	f.prevOut = 0
}

// Apply filters src into dst and returns dst. dst is grown when it is shorter
// than src; passing nil allocates. State carries over from previous calls.
func (f *Filter) Apply(dst, src []float64) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	for i, x := range src {
		dst[i] = f.Update(x)
	}
	return dst
}

// FilterSpec describes a filter to be built per stream.
type FilterSpec struct {
	Kind     FilterKind
	CutoffHz float64
}

// New builds a zero-state filter for sampleRate.
func (s FilterSpec) New(sampleRate int) *Filter {
	return NewFilter(s.Kind, s.CutoffHz, sampleRate)
}
