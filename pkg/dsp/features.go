package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Energy returns the L1 norm of x.
func Energy(x []float64) float64 {
	var e float64
	for _, v := range x {
		e += math.Abs(v)
	}
	return e
}

// MaxAmplitude returns the largest value in x, or 0 when x is empty.
func MaxAmplitude(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := x[0]
	for _, v := range x[1:] {
		m = max(m, v)
	}
	return m
}

// Mean returns the arithmetic mean of x, or 0 when x is empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

// Variance returns the sum of squared deviations from the mean. It is not
// divided by the sample count.
func Variance(x []float64) float64 {
	m := Mean(x)
	var s float64
	for _, v := range x {
		d := v - m
		s += d * d
	}
	return s
}

// ArgMax returns the index of the largest value in x, preferring the lowest
// index on ties, or -1 when x is empty.
func ArgMax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}

// WindowFunc names the taper applied before a spectrum is computed.
type WindowFunc string

const (
	// WindowBoxcar applies no taper.
	WindowBoxcar   WindowFunc = "boxcar"
	WindowHann     WindowFunc = "hann"
	WindowHamming  WindowFunc = "hamming"
	WindowBlackman WindowFunc = "blackman"
)

// IsValid reports whether w is a recognised window function.
func (w WindowFunc) IsValid() bool {
	switch w {
	case WindowBoxcar, WindowHann, WindowHamming, WindowBlackman:
		return true
	}
	return false
}

func (w WindowFunc) coefficients(n int) ([]float64, error) {
	switch w {
	case "", WindowBoxcar:
		return nil, nil
	case WindowHann:
		return window.Hann(n), nil
	case WindowHamming:
		return window.Hamming(n), nil
	case WindowBlackman:
		return window.Blackman(n), nil
	default:
		return nil, fmt.Errorf("dsp: unknown window function %q", w)
	}
}

// Spectrum returns the FFT magnitude spectrum of x. The result has the same
// length as x; bins above len(x)/2 mirror the lower half. An empty x yields
// an empty spectrum.
func Spectrum(x []float64, wf WindowFunc) ([]float64, error) {
	if len(x) == 0 {
		return []float64{}, nil
	}
	coeffs, err := wf.coefficients(len(x))
	if err != nil {
		return nil, err
	}
	in := x
	if coeffs != nil {
		in = make([]float64, len(x))
		for i, v := range x {
			in[i] = v * coeffs[i]
		}
	}
	out := fft.FFTReal(in)
	mags := make([]float64, len(out))
	for i, c := range out {
		mags[i] = cmplx.Abs(c)
	}
	return mags, nil
}

// DominantBin returns the index of the strongest bin in the non-mirrored half
// of a magnitude spectrum, bins 0 through len/2, or -1 for an empty spectrum.
func DominantBin(spectrum []float64) int {
	if len(spectrum) == 0 {
		return -1
	}
	return ArgMax(spectrum[:len(spectrum)/2+1])
}

// SplitWindows cuts x into consecutive windows of size samples. The last
// window is zero-padded when x is not a multiple of size.
func SplitWindows(x []float64, size int) [][]float64 {
	if size < 1 || len(x) == 0 {
		return nil
	}
	var out [][]float64
	for start := 0; start < len(x); start += size {
		w := make([]float64, size)
		copy(w, x[start:min(start+size, len(x))])
		out = append(out, w)
	}
	return out
}

// Summary bundles the scalar features of a segment.
type Summary struct {
	Energy       float64
	MaxAmplitude float64
	Variance     float64
	DominantBin  int
}

// Summarize computes every scalar feature of x, including the dominant bin of
// its spectrum under wf.
func Summarize(x []float64, wf WindowFunc) (Summary, error) {
	spec, err := Spectrum(x, wf)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Energy:       Energy(x),
		MaxAmplitude: MaxAmplitude(x),
		Variance:     Variance(x),
		DominantBin:  DominantBin(spec),
	}, nil
}
