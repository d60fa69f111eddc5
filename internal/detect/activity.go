package detect

import (
	"context"
	"fmt"

	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
)

// ActivityDetector classifies tumbling windows of raw audio. Whole chunks are
// accumulated until at least one window is buffered; the buffer is then
// classified as a unit and cleared. An event is emitted for every window
// that completes a run of Confirm agreeing predictions.
type ActivityDetector struct {
	cl     classifier
	cfg    ActivityConfig
	window int

	pending []float64
	start   int64
	recent  []int
}

var _ Detector = (*ActivityDetector)(nil)

// NewActivity creates an activity detector.
func NewActivity(cfg ActivityConfig, sampleRate int, c classify.Classifier, m *observe.Metrics) *ActivityDetector {
	return &ActivityDetector{
		cl:     classifier{kind: Activity, labels: cfg.Labels, c: c, metrics: m},
		cfg:    cfg,
		window: seconds(cfg.WindowSeconds, sampleRate),
	}
}

// Kind implements [Detector].
func (d *ActivityDetector) Kind() Kind { return Activity }

// Process implements [Detector].
func (d *ActivityDetector) Process(ctx context.Context, chunk []int16) ([]Event, error) {
	for _, s := range chunk {
		d.pending = append(d.pending, float64(s))
	}
	if len(d.pending) < d.window {
		return nil, nil
	}

	end := d.start + int64(len(d.pending))
	sum, err := dsp.Summarize(d.pending, d.cfg.Window)
	d.start = end
	d.pending = d.pending[:0]
	if err != nil {
		return nil, fmt.Errorf("detect: activity: %w", err)
	}

	p, ok, err := d.cl.classify(ctx, classify.Input{
		Vector:      []float64{sum.Energy},
		Energy:      sum.Energy,
		DominantBin: sum.DominantBin,
	})
	if err != nil || !ok {
		return nil, err
	}

	confirm := max(d.cfg.Confirm, 1)
	d.recent = append(d.recent, p.Label)
	if len(d.recent) > confirm {
		d.recent = d.recent[len(d.recent)-confirm:]
	}
	if len(d.recent) < confirm {
		return nil, nil
	}
	for _, l := range d.recent {
		if l != p.Label {
			return nil, nil
		}
	}
	return []Event{d.cl.event(p, end)}, nil
}

// Reset implements [Detector].
func (d *ActivityDetector) Reset() {
	d.pending = d.pending[:0]
	d.start = 0
	d.recent = d.recent[:0]
}
