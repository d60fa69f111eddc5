package detect

import (
	"context"
	"fmt"

	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
)

// GestureDetector finds taps in the low-pass envelope of a rolling window.
// Once the window is saturated, each chunk runs peak detection over the
// envelope; the most recent peak that passes debounce is segmented and
// classified. After IdleChunks chunks without a tap an idle event is
// emitted once.
type GestureDetector struct {
	cl        classifier
	cfg       GestureConfig
	pre, post int

	buf  *dsp.StreamBuffer
	deb  *dsp.Debouncer
	raw  []float64
	low  []float64
	idle int
}

var _ Detector = (*GestureDetector)(nil)

// NewGesture creates a gesture detector.
func NewGesture(cfg GestureConfig, sampleRate int, c classify.Classifier, m *observe.Metrics) *GestureDetector {
	pre, post := cfg.Segment.Samples(sampleRate)
	return &GestureDetector{
		cl:   classifier{kind: Gesture, labels: cfg.Labels, c: c, metrics: m},
		cfg:  cfg,
		pre:  pre,
		post: post,
		buf: dsp.NewStreamBuffer(dsp.BufferConfig{
			Samples:    seconds(cfg.WindowSeconds, sampleRate),
			SampleRate: sampleRate,
			Filter:     dsp.FilterSpec{Kind: dsp.Lowpass, CutoffHz: cfg.CutoffHz},
			Mode:       cfg.FilterMode,
		}),
		deb: dsp.NewDebouncer(cfg.DebounceConfig),
	}
}

// Kind implements [Detector].
func (d *GestureDetector) Kind() Kind { return Gesture }

// Process implements [Detector].
func (d *GestureDetector) Process(ctx context.Context, chunk []int16) ([]Event, error) {
	d.buf.Push(chunk)
	end := d.buf.Offset() + int64(d.buf.Len())

	var events []Event
	d.idle++
	if d.cfg.IdleChunks > 0 && d.idle == d.cfg.IdleChunks {
		events = append(events, Event{
			Detector:    Gesture,
			Label:       IdleLabel,
			Name:        LabelName(d.cfg.Labels, IdleLabel),
			SampleIndex: end,
		})
	}

	if !d.buf.Saturated() || d.buf.FilteredMax() < d.cfg.MinAmplitude {
		return events, nil
	}

	d.low = d.buf.Filtered(d.low)
	peaks := dsp.FindPeaks(d.low, d.cfg.MinAmplitude)
	cand, ok, rej := d.deb.Select(d.low, peaks, d.buf.Offset())
	recordRejections(ctx, d.cl.metrics, Gesture, rej)
	if !ok {
		return events, nil
	}
	d.idle = 0

	d.raw = d.buf.Raw(d.raw)
	vec, err := d.cfg.Feature.Vector(d.raw, d.low, cand.Index, d.pre, d.post, d.cfg.Window)
	if err != nil {
		return events, fmt.Errorf("detect: gesture: %w", err)
	}
	p, ok, err := d.cl.classify(ctx, classify.Input{Vector: vec})
	if err != nil || !ok {
		return events, err
	}
	return append(events, d.cl.event(p, cand.Absolute)), nil
}

// Reset implements [Detector].
func (d *GestureDetector) Reset() {
	d.buf.Reset()
	d.deb.Reset()
	d.idle = 0
}
