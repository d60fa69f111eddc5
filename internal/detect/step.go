package detect

import (
	"context"
	"fmt"

	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/dsp"
)

// StepDetector counts footsteps in the low-pass envelope of a rolling
// window. Windows whose envelope spectrum peaks above SpeakingBin are
// skipped, since speech produces envelope peaks too. The surviving peak of
// each cycle is counted unless the deduper has seen it already.
type StepDetector struct {
	cfg     StepConfig
	metrics *observe.Metrics

	buf   *dsp.StreamBuffer
	deb   *dsp.Debouncer
	dedup *dsp.Deduper
	low   []float64
	count int
}

var _ Detector = (*StepDetector)(nil)

// NewStep creates a step detector.
func NewStep(cfg StepConfig, sampleRate int, m *observe.Metrics) *StepDetector {
	return &StepDetector{
		cfg:     cfg,
		metrics: m,
		buf: dsp.NewStreamBuffer(dsp.BufferConfig{
			Samples:    seconds(cfg.WindowSeconds, sampleRate),
			SampleRate: sampleRate,
			Filter:     dsp.FilterSpec{Kind: dsp.Lowpass, CutoffHz: cfg.CutoffHz},
			Mode:       cfg.FilterMode,
		}),
		deb:   dsp.NewDebouncer(cfg.DebounceConfig),
		dedup: dsp.NewDeduper(cfg.Dedup, cfg.Tolerance()),
	}
}

// Kind implements [Detector].
func (d *StepDetector) Kind() Kind { return Step }

// Count returns the number of steps counted so far.
func (d *StepDetector) Count() int { return d.count }

// Process implements [Detector].
func (d *StepDetector) Process(ctx context.Context, chunk []int16) ([]Event, error) {
	d.buf.Push(chunk)
	if !d.buf.Saturated() {
		return nil, nil
	}

	d.low = d.buf.Filtered(d.low)
	peaks := dsp.FindPeaks(d.low, d.cfg.MinAmplitude)
	if len(peaks) == 0 {
		return nil, nil
	}
	if d.cfg.SpeakingBin > 0 {
		spec, err := dsp.Spectrum(d.low, d.cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("detect: step: %w", err)
		}
		if bin := dsp.DominantBin(spec); bin > d.cfg.SpeakingBin {
			d.metrics.RecordRejected(ctx, string(Step), "speaking", len(peaks))
			logSkip(Step, "speaking", "dominant_bin", bin)
			return nil, nil
		}
	}

	cand, ok, rej := d.deb.Select(d.low, peaks, d.buf.Offset())
	recordRejections(ctx, d.metrics, Step, rej)
	if !ok {
		return nil, nil
	}
	if !d.dedup.Admit(cand) {
		d.metrics.RecordRejected(ctx, string(Step), "duplicate", 1)
		return nil, nil
	}
	d.count++
	return []Event{{
		Detector:    Step,
		Name:        "step",
		SampleIndex: cand.Absolute,
		Count:       d.count,
	}}, nil
}

// Reset implements [Detector]. The step count restarts at zero.
func (d *StepDetector) Reset() {
	d.buf.Reset()
	d.deb.Reset()
	d.dedup.Reset()
	d.count = 0
}
