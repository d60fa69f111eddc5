package dsp

import "math"

// Roll describes the asymmetric extent of a segment around an event.
type Roll struct {
	PreSeconds  float64 `yaml:"pre_seconds"`
	PostSeconds float64 `yaml:"post_seconds"`
}

// Samples converts the roll to sample counts at sampleRate.
func (r Roll) Samples(sampleRate int) (pre, post int) {
	pre = int(math.Round(r.PreSeconds * float64(sampleRate)))
	post = int(math.Round(r.PostSeconds * float64(sampleRate)))
	return max(pre, 0), max(post, 0)
}

// SegmentBounds returns the half-open range [start, end) of a segment of
// pre+post samples around event in a buffer of n samples.
//
// A segment that would start before 0 is shifted right and one that would
// end after n is shifted left, keeping its length. The result is finally
// clamped to [0, n], so the length is min(pre+post, n). Out-of-range events
// never panic.
func SegmentBounds(n, event, pre, post int) (start, end int) {
	pre, post = max(pre, 0), max(post, 0)
	start = event - pre
	end = event + post
	if start < 0 {
		end -= start
		start = 0
	}
	if end > n {
		start -= end - n
		end = n
	}
	start = min(max(start, 0), n)
	end = min(max(end, start), n)
	return start, end
}

// Extract copies the segment around event out of buf.
func Extract(buf []float64, event, pre, post int) []float64 {
	start, end := SegmentBounds(len(buf), event, pre, post)
	seg := make([]float64, end-start)
	copy(seg, buf[start:end])
	return seg
}

// ExtractAroundMax extracts the segment around the largest sample of buf and
// returns it together with that sample's index. An empty buf yields an empty
// segment and index -1.
func ExtractAroundMax(buf []float64, pre, post int) ([]float64, int) {
	idx := ArgMax(buf)
	if idx < 0 {
		return nil, -1
	}
	return Extract(buf, idx, pre, post), idx
}
