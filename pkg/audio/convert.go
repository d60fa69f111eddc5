package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// FormatConverter converts chunks of one format to a target format, keeping
// resampler state across chunks so that chunk boundaries do not drift. It
// logs a warning on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target Format

	resampler      *Resampler
	warnedMismatch sync.Once
}

// Convert converts samples in format from to the target format. If the
// formats already match, samples are returned unchanged (zero allocation).
// Conversion order: downmix first, then resample.
func (c *FormatConverter) Convert(samples []int16, from Format) []int16 {
	if from == c.Target {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", from.String(),
			"to", c.Target.String(),
		)
	})

	out := samples
	if from.Channels != c.Target.Channels {
		switch {
		case c.Target.Channels == 1:
			out = Downmix(out, from.Channels)
		case from.Channels == 1:
			out = Upmix(out, c.Target.Channels)
		default:
			out = Upmix(Downmix(out, from.Channels), c.Target.Channels)
		}
	}

	if from.SampleRate != c.Target.SampleRate {
		if c.resampler == nil || c.resampler.src != from.SampleRate {
			c.resampler = NewResampler(from.SampleRate, c.Target.SampleRate, c.Target.Channels)
		}
		out = c.resampler.Process(out)
	}
	return out
}

// ConvertStream wraps s so that every Read returns chunks in target format.
// Chunks that convert to nothing (too short to yield a resampled sample) are
// skipped.
func ConvertStream(s Stream, target Format) Stream {
	if s.Format() == target {
		return s
	}
	return &convertedStream{Stream: s, conv: FormatConverter{Target: target}}
}

type convertedStream struct {
	Stream
	conv FormatConverter
}

func (c *convertedStream) Format() Format { return c.conv.Target }

func (c *convertedStream) Read(ctx context.Context) ([]int16, error) {
	for {
		chunk, err := c.Stream.Read(ctx)
		if err != nil {
			return nil, err
		}
		out := c.conv.Convert(chunk, c.Stream.Format())
		if len(out) > 0 {
			return out, nil
		}
	}
}

// Downmix averages each interleaved frame of channels samples into one mono
// sample. A trailing partial frame is dropped.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// Upmix duplicates each mono sample into channels interleaved samples.
func Upmix(mono []int16, channels int) []int16 {
	if channels <= 1 {
		return mono
	}
	out := make([]int16, len(mono)*channels)
	for i, s := range mono {
		for ch := range channels {
			out[i*channels+ch] = s
		}
	}
	return out
}

// Resampler converts interleaved 16-bit PCM between sample rates by linear
// interpolation. It carries its phase and the last input frame across calls,
// so a stream resampled chunk by chunk yields the same samples as one
// resampled in a single call.
type Resampler struct {
	src, dst int
	channels int

	// pos is the position of the next output frame relative to the first
	// frame of the next input chunk, in units of 1/dst input frames.
	// Negative values interpolate from prev.
	pos  int64
	prev []int16
}

// NewResampler returns a resampler from src to dst Hz for interleaved
// samples with the given channel count.
func NewResampler(src, dst, channels int) *Resampler {
	return &Resampler{src: src, dst: dst, channels: max(channels, 1), prev: make([]int16, max(channels, 1))}
}

// Process resamples the next chunk. Output frames that need input beyond the
// end of in are produced by the next call.
func (r *Resampler) Process(in []int16) []int16 {
	if r.src <= 0 || r.dst <= 0 || r.src == r.dst {
		return in
	}
	ch := r.channels
	frames := len(in) / ch
	if frames == 0 {
		return nil
	}
	frame := func(i int, c int) int64 {
		if i < 0 {
			return int64(r.prev[c])
		}
		return int64(in[i*ch+c])
	}

	dst, src := int64(r.dst), int64(r.src)
	out := make([]int16, 0, (frames*r.dst/r.src+2)*ch)
	for {
		i := floorDiv(r.pos, dst)
		if i+1 >= int64(frames) {
			break
		}
		frac := r.pos - i*dst
		for c := range ch {
			s0, s1 := frame(int(i), c), frame(int(i)+1, c)
			out = append(out, int16((s0*(dst-frac)+s1*frac)/dst))
		}
		r.pos += src
	}
	r.pos -= int64(frames) * dst
	copy(r.prev, in[(frames-1)*ch:frames*ch])
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// ResampleMono resamples a complete mono recording from srcRate to dstRate.
func ResampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	return NewResampler(srcRate, dstRate, 1).Process(samples)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
