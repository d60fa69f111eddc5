package detect

import (
	"context"

	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
)

// BreathingDetector classifies overlapping frames of audio. Each frame is
// high-passed from zero filter state, and the segment around its largest
// sample is handed to the classifier. Frames completed by a chunk whose
// maximum stays below Gate are skipped as silence.
type BreathingDetector struct {
	cl        classifier
	cfg       BreathingConfig
	pre, post int

	framer *dsp.Framer
	filter *dsp.Filter
	in     []float64
	hp     []float64
}

var _ Detector = (*BreathingDetector)(nil)

// NewBreathing creates a breathing detector.
func NewBreathing(cfg BreathingConfig, sampleRate int, c classify.Classifier, m *observe.Metrics) *BreathingDetector {
	size := seconds(cfg.WindowSeconds, sampleRate)
	hop := size - int(float64(size)*cfg.Overlap)
	pre, post := cfg.Segment.Samples(sampleRate)
	return &BreathingDetector{
		cl:     classifier{kind: Breathing, labels: cfg.Labels, c: c, metrics: m},
		cfg:    cfg,
		pre:    pre,
		post:   post,
		framer: dsp.NewFramer(size, hop),
		filter: dsp.NewFilter(dsp.Highpass, cfg.CutoffHz, sampleRate),
	}
}

// Kind implements [Detector].
func (d *BreathingDetector) Kind() Kind { return Breathing }

// Process implements [Detector].
func (d *BreathingDetector) Process(ctx context.Context, chunk []int16) ([]Event, error) {
	d.in = dsp.Int16ToFloat(d.in, chunk)
	gate := dsp.MaxAmplitude(d.in)
	frames := d.framer.Push(d.in)
	if len(frames) == 0 {
		return nil, nil
	}
	if gate < d.cfg.Gate {
		logSkip(Breathing, "gate", "max", gate)
		return nil, nil
	}

	var events []Event
	for _, f := range frames {
		d.filter.Reset()
		d.hp = d.filter.Apply(d.hp, f.Samples)
		seg, peak := dsp.ExtractAroundMax(d.hp, d.pre, d.post)
		if peak < 0 {
			continue
		}
		p, ok, err := d.cl.classify(ctx, classify.Input{Vector: seg})
		if err != nil {
			return events, err
		}
		if ok {
			events = append(events, d.cl.event(p, f.Start+int64(peak)))
		}
	}
	return events, nil
}

// Reset implements [Detector].
func (d *BreathingDetector) Reset() {
	d.framer.Reset()
	d.filter.Reset()
}
