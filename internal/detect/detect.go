// Package detect implements the per-activity detection policies that turn a
// stream of PCM chunks into classified events.
//
// Every policy implements [Detector]. A detector owns its filters, windows and
// debounce state exclusively and is driven by a single goroutine (see
// internal/session); none of the types here are safe for concurrent use.
//
//   - [Activity] classifies tumbling windows with the threshold rule and
//     emits once consecutive windows agree.
//   - [Gesture] finds taps in a low-pass envelope, extracts the segment
//     around the most recent one and votes against training exemplars.
//   - [Step] counts envelope peaks with debounce and de-duplication.
//   - [Breathing] classifies overlapping high-passed frames with k-NN.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
)

// Kind names a detection policy.
type Kind string

const (
	Activity  Kind = "activity"
	Gesture   Kind = "gesture"
	Step      Kind = "step"
	Breathing Kind = "breathing"
)

// Kinds lists every detection policy.
var Kinds = []Kind{Activity, Gesture, Step, Breathing}

// IsValid reports whether k is a known policy.
func (k Kind) IsValid() bool {
	switch k {
	case Activity, Gesture, Step, Breathing:
		return true
	}
	return false
}

// ErrUnknownKind is returned by [New] for an unrecognised [Kind].
var ErrUnknownKind = errors.New("detect: unknown detector kind")

// ErrNoClassifier is returned by [New] when a classifying policy is built
// without a classifier.
var ErrNoClassifier = errors.New("detect: classifier required")

// IdleLabel is the label of the event a gesture detector emits after a quiet
// period.
const IdleLabel = -1

// Event is one detection result.
type Event struct {
	Detector Kind `json:"detector"`

	// Label is the classifier label, [IdleLabel] for idle events and 0 for
	// steps.
	Label int    `json:"label"`
	Name  string `json:"name"`

	// SampleIndex is the absolute stream position of the event: the peak
	// for gestures, steps and breathing, the end of the window for activity.
	SampleIndex int64 `json:"sample_index"`

	// Count is the running step count. Zero for other detectors.
	Count int `json:"count,omitempty"`

	// Votes holds the per-label votes of the prediction, if any.
	Votes map[int]int `json:"votes,omitempty"`

	// Time is stamped by the session that emitted the event.
	Time time.Time `json:"time"`
}

// Detector consumes consecutive PCM chunks of one mono stream.
type Detector interface {
	// Kind returns the detection policy.
	Kind() Kind

	// Process feeds the next chunk and returns the events it completes, in
	// stream order. A returned error affects only this chunk; the detector
	// stays usable.
	Process(ctx context.Context, chunk []int16) ([]Event, error)

	// Reset drops all buffered audio and history.
	Reset()
}

// Option configures a detector built by [New].
type Option func(*options)

type options struct {
	metrics *observe.Metrics
}

// WithMetrics records classification latency, rejected peaks and skipped
// classifications to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New builds the detector of kind k from cfg for audio at sampleRate.
// Classifying policies need c; [Step] ignores it.
func New(k Kind, cfg Config, sampleRate int, c classify.Classifier, opts ...Option) (Detector, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("detect: sample rate must be positive, got %d", sampleRate)
	}
	if k != Step && c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoClassifier, k)
	}

	switch k {
	case Activity:
		return NewActivity(cfg.Activity, sampleRate, c, o.metrics), nil
	case Gesture:
		return NewGesture(cfg.Gesture, sampleRate, c, o.metrics), nil
	case Step:
		return NewStep(cfg.Step, sampleRate, o.metrics), nil
	case Breathing:
		return NewBreathing(cfg.Breathing, sampleRate, c, o.metrics), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

// classifier wraps a classify.Classifier with the bookkeeping every
// classifying detector shares.
type classifier struct {
	kind    Kind
	labels  []string
	c       classify.Classifier
	metrics *observe.Metrics

	warnedEmpty bool
}

// classify runs one classification. An empty model is not an error: it is
// reported once and yields ok == false.
func (cl *classifier) classify(ctx context.Context, in classify.Input) (p classify.Prediction, ok bool, err error) {
	ctx = observe.WithScope(ctx, observe.Scope{Detector: string(cl.kind)})
	ctx, span := observe.StartSpan(ctx, "detect.classify")
	defer span.End()

	start := time.Now()
	p, err = cl.c.Classify(ctx, in)
	cl.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("detector", string(cl.kind))),
	)

	switch {
	case errors.Is(err, classify.ErrEmptyModel):
		cl.metrics.RecordClassifyError(ctx, string(cl.kind), "empty_model")
		if !cl.warnedEmpty {
			cl.warnedEmpty = true
			observe.Logger(ctx).Warn("detect: no training data, events are not classified")
		}
		return classify.Prediction{}, false, nil
	case err != nil:
		cl.metrics.RecordClassifyError(ctx, string(cl.kind), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify.Prediction{}, false, fmt.Errorf("detect: %s: classify: %w", cl.kind, err)
	}
	return p, true, nil
}

// event builds the event for prediction p at absolute index idx.
func (cl *classifier) event(p classify.Prediction, idx int64) Event {
	return Event{
		Detector:    cl.kind,
		Label:       p.Label,
		Name:        LabelName(cl.labels, p.Label),
		SampleIndex: idx,
		Votes:       p.Votes,
	}
}

// LabelName returns labels[label] or a numeric fallback.
func LabelName(labels []string, label int) string {
	if label == IdleLabel {
		return "idle"
	}
	if label >= 0 && label < len(labels) {
		return labels[label]
	}
	return "label " + strconv.Itoa(label)
}

func recordRejections(ctx context.Context, m *observe.Metrics, k Kind, r dsp.Rejections) {
	m.RecordRejected(ctx, string(k), "separation", r.Separation)
	m.RecordRejected(ctx, string(k), "guard", r.Guard)
}

func seconds(s float64, rate int) int {
	return max(int(s*float64(rate)+0.5), 1)
}

// logSkip logs a per-chunk processing problem at debug level.
func logSkip(k Kind, reason string, args ...any) {
	slog.Debug("detect: window skipped", append([]any{"detector", k, "reason", reason}, args...)...)
}
