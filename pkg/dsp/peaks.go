package dsp

// FindPeaks returns the indices of local maxima in x whose value is at least
// minAmplitude, in ascending order.
//
// A sample is a local maximum when it is strictly greater than its left
// neighbour and greater than or equal to its right neighbour, so a flat-topped
// peak is reported once, at its first sample. The first and last samples are
// never reported because they lack a neighbour.
func FindPeaks(x []float64, minAmplitude float64) []int {
	var peaks []int
	for i := 1; i < len(x)-1; i++ {
		if x[i] < minAmplitude {
			continue
		}
		if x[i] > x[i-1] && x[i] >= x[i+1] {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// Candidate is a peak that survived debounce and is ready for segmentation.
type Candidate struct {
	// Index is the position inside the window the peak was found in.
	Index int

	// Absolute is the position in the whole stream.
	Absolute int64

	// Amplitude is the window value at Index.
	Amplitude float64
}
