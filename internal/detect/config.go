package detect

import (
	"errors"
	"fmt"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// FeatureKind selects the vector a gesture segment is classified by.
type FeatureKind string

const (
	// FeatureRaw uses the raw segment samples.
	FeatureRaw FeatureKind = "raw"

	// FeatureLowpass uses the low-pass envelope of the segment.
	FeatureLowpass FeatureKind = "lowpass"

	// FeatureSpectrum uses the magnitude spectrum of the raw segment.
	FeatureSpectrum FeatureKind = "spectrum"
)

// FeatureKinds lists every feature kind in a stable order.
var FeatureKinds = []FeatureKind{FeatureRaw, FeatureLowpass, FeatureSpectrum}

// IsValid reports whether f is a known feature kind.
func (f FeatureKind) IsValid() bool {
	switch f {
	case FeatureRaw, FeatureLowpass, FeatureSpectrum:
		return true
	}
	return false
}

// Vector builds the feature vector of the segment around event. raw and
// filtered are aligned views of the same window.
func (f FeatureKind) Vector(raw, filtered []float64, event, pre, post int, wf dsp.WindowFunc) ([]float64, error) {
	switch f {
	case FeatureRaw:
		return dsp.Extract(raw, event, pre, post), nil
	case FeatureLowpass:
		return dsp.Extract(filtered, event, pre, post), nil
	case FeatureSpectrum:
		return dsp.Spectrum(dsp.Extract(raw, event, pre, post), wf)
	default:
		return nil, fmt.Errorf("detect: unknown feature kind %q", f)
	}
}

// GestureDataset returns the dataset name holding gesture exemplars of
// feature kind f.
func GestureDataset(base string, f FeatureKind) string {
	return base + "-" + string(f)
}

// ActivityConfig configures the activity detector.
type ActivityConfig struct {
	// WindowSeconds is the minimum audio classified at once. Whole chunks
	// are accumulated until at least this much is buffered.
	WindowSeconds float64 `yaml:"window_seconds"`

	// Confirm is the number of consecutive windows that must agree before an
	// event is emitted.
	Confirm int `yaml:"confirm"`

	// Window is the taper applied before the dominant bin is computed.
	Window dsp.WindowFunc `yaml:"window"`

	Dataset    string          `yaml:"dataset"`
	Labels     []string        `yaml:"labels"`
	Classifier classify.Config `yaml:"classifier"`
}

// GestureConfig configures the gesture detector.
type GestureConfig struct {
	WindowSeconds float64        `yaml:"window_seconds"`
	CutoffHz      float64        `yaml:"cutoff_hz"`
	FilterMode    dsp.FilterMode `yaml:"filter_mode"`

	// MinAmplitude is the smallest envelope peak considered a tap.
	MinAmplitude float64 `yaml:"min_amplitude"`

	dsp.DebounceConfig `yaml:",inline"`

	Segment dsp.Roll       `yaml:"segment"`
	Feature FeatureKind    `yaml:"feature"`
	Window  dsp.WindowFunc `yaml:"window"`

	// IdleChunks is the number of chunks without a tap after which an idle
	// event is emitted. Zero disables idle events.
	IdleChunks int `yaml:"idle_chunks"`

	// Dataset is the base dataset name; the feature kind is appended.
	Dataset    string          `yaml:"dataset"`
	Labels     []string        `yaml:"labels"`
	Classifier classify.Config `yaml:"classifier"`
}

// StepConfig configures the step counter.
type StepConfig struct {
	WindowSeconds float64        `yaml:"window_seconds"`
	CutoffHz      float64        `yaml:"cutoff_hz"`
	FilterMode    dsp.FilterMode `yaml:"filter_mode"`
	MinAmplitude  float64        `yaml:"min_amplitude"`

	dsp.DebounceConfig `yaml:",inline"`

	// SpeakingBin skips windows whose envelope spectrum peaks above this
	// bin. Zero disables the check.
	SpeakingBin int            `yaml:"speaking_bin"`
	Window      dsp.WindowFunc `yaml:"window"`

	Dedup dsp.DedupMode `yaml:"dedup"`

	// DedupTolerance is the proximity in samples under which two steps are
	// the same. Zero only matches the exact sample; unset uses MinSeparation.
	DedupTolerance *int `yaml:"dedup_tolerance"`
}

// Tolerance returns the effective proximity of the step deduper.
func (c StepConfig) Tolerance() int {
	if c.DedupTolerance == nil {
		return c.MinSeparation
	}
	return *c.DedupTolerance
}

// BreathingConfig configures the breathing phase detector.
type BreathingConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"`

	// Overlap is the fraction of a window shared with the next one.
	Overlap  float64 `yaml:"overlap"`
	CutoffHz float64 `yaml:"cutoff_hz"`

	// Gate skips windows completed by a chunk whose maximum is below it.
	Gate float64 `yaml:"gate"`

	Segment    dsp.Roll        `yaml:"segment"`
	Dataset    string          `yaml:"dataset"`
	Labels     []string        `yaml:"labels"`
	Classifier classify.Config `yaml:"classifier"`
}

// Config groups the settings of every detector.
type Config struct {
	Activity  ActivityConfig  `yaml:"activity"`
	Gesture   GestureConfig   `yaml:"gesture"`
	Step      StepConfig      `yaml:"step"`
	Breathing BreathingConfig `yaml:"breathing"`
}

// DefaultConfig returns the detector settings tuned for 16 kHz in-ear audio.
func DefaultConfig() Config {
	return Config{
		Activity: ActivityConfig{
			WindowSeconds: 1,
			Confirm:       2,
			Window:        dsp.WindowBoxcar,
			Dataset:       "activity",
			Labels:        append([]string(nil), classify.ActivityNames...),
			Classifier: classify.Config{
				Kind:      classify.KindThreshold,
				Threshold: classify.DefaultThresholds(),
			},
		},
		Gesture: GestureConfig{
			WindowSeconds: 3,
			CutoffHz:      50,
			FilterMode:    dsp.FilterPerChunk,
			MinAmplitude:  800,
			DebounceConfig: dsp.DebounceConfig{
				MinSeparation: 5000,
				LowerGuard:    10000,
				UpperGuard:    37360,
				Reference:     dsp.RefLastAccepted,
			},
			Segment:    dsp.Roll{PreSeconds: 0.15, PostSeconds: 0.25},
			Feature:    FeatureSpectrum,
			Window:     dsp.WindowBoxcar,
			IdleChunks: 25,
			Dataset:    "gesture",
			Labels:     []string{"jaw", "left temple", "right temple"},
			Classifier: classify.Config{
				Kind:    classify.KindVote,
				Weights: classify.DefaultVoteWeights(),
			},
		},
		Step: StepConfig{
			WindowSeconds: 1,
			CutoffHz:      50,
			FilterMode:    dsp.FilterPerChunk,
			MinAmplitude:  700,
			DebounceConfig: dsp.DebounceConfig{
				MinSeparation: 3000,
				LowerGuard:    3000,
				UpperGuard:    13000,
				Reference:     dsp.RefPreviousCandidate,
			},
			SpeakingBin: 120,
			Window:      dsp.WindowBoxcar,
			Dedup:       dsp.DedupProximity,
		},
		Breathing: BreathingConfig{
			WindowSeconds: 1,
			Overlap:       0.5,
			CutoffHz:      500,
			Gate:          440,
			Segment:       dsp.Roll{PreSeconds: 0.15, PostSeconds: 0.25},
			Dataset:       "breathing",
			Labels:        []string{"nose exhale", "nose inhale", "mouth exhale", "mouth inhale"},
			Classifier:    classify.Config{Kind: classify.KindKNN, K: 1},
		},
	}
}

// Dataset returns the training dataset read by the detector of kind k, or
// the empty string if it uses none.
func (c Config) Dataset(k Kind) string {
	switch k {
	case Activity:
		return c.Activity.Dataset
	case Gesture:
		return GestureDataset(c.Gesture.Dataset, c.Gesture.Feature)
	case Breathing:
		return c.Breathing.Dataset
	}
	return ""
}

// Classifier returns the classifier settings of the detector of kind k and
// whether it uses a classifier at all.
func (c Config) Classifier(k Kind) (classify.Config, bool) {
	switch k {
	case Activity:
		return c.Activity.Classifier, true
	case Gesture:
		return c.Gesture.Classifier, true
	case Breathing:
		return c.Breathing.Classifier, true
	}
	return classify.Config{}, false
}

// Labels returns the label names of the detector of kind k.
func (c Config) Labels(k Kind) []string {
	switch k {
	case Activity:
		return c.Activity.Labels
	case Gesture:
		return c.Gesture.Labels
	case Breathing:
		return c.Breathing.Labels
	}
	return nil
}

// Validate checks every detector and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("detectors.%s: %w", section, err))
		}
	}

	a := c.Activity
	add("activity", positive("window_seconds", a.WindowSeconds))
	if a.Confirm < 1 {
		add("activity", fmt.Errorf("confirm must be >= 1, got %d", a.Confirm))
	}
	add("activity", windowFunc(a.Window))
	add("activity", validateClassifier(a.Classifier, a.Dataset))

	g := c.Gesture
	add("gesture", positive("window_seconds", g.WindowSeconds))
	add("gesture", positive("cutoff_hz", g.CutoffHz))
	add("gesture", filterMode(g.FilterMode))
	add("gesture", g.DebounceConfig.Validate())
	add("gesture", roll(g.Segment))
	if !g.Feature.IsValid() {
		add("gesture", fmt.Errorf("unknown feature %q", g.Feature))
	}
	add("gesture", windowFunc(g.Window))
	if g.IdleChunks < 0 {
		add("gesture", fmt.Errorf("idle_chunks must be >= 0, got %d", g.IdleChunks))
	}
	if len(g.Labels) == 0 {
		add("gesture", errors.New("labels must not be empty"))
	}
	add("gesture", validateClassifier(g.Classifier, g.Dataset))

	s := c.Step
	add("step", positive("window_seconds", s.WindowSeconds))
	add("step", positive("cutoff_hz", s.CutoffHz))
	add("step", filterMode(s.FilterMode))
	add("step", s.DebounceConfig.Validate())
	add("step", windowFunc(s.Window))
	if s.SpeakingBin < 0 {
		add("step", fmt.Errorf("speaking_bin must be >= 0, got %d", s.SpeakingBin))
	}
	if s.Dedup != "" && !s.Dedup.IsValid() {
		add("step", fmt.Errorf("unknown dedup mode %q", s.Dedup))
	}
	if s.DedupTolerance != nil && *s.DedupTolerance < 0 {
		add("step", fmt.Errorf("dedup_tolerance must be >= 0, got %d", *s.DedupTolerance))
	}

	b := c.Breathing
	add("breathing", positive("window_seconds", b.WindowSeconds))
	if b.Overlap < 0 || b.Overlap >= 1 {
		add("breathing", fmt.Errorf("overlap must be in [0, 1), got %g", b.Overlap))
	}
	add("breathing", positive("cutoff_hz", b.CutoffHz))
	add("breathing", roll(b.Segment))
	if len(b.Labels) == 0 {
		add("breathing", errors.New("labels must not be empty"))
	}
	add("breathing", validateClassifier(b.Classifier, b.Dataset))

	return errors.Join(errs...)
}

func positive(name string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be > 0, got %g", name, v)
	}
	return nil
}

func windowFunc(w dsp.WindowFunc) error {
	if w != "" && !w.IsValid() {
		return fmt.Errorf("unknown window %q", w)
	}
	return nil
}

func filterMode(m dsp.FilterMode) error {
	if m != "" && !m.IsValid() {
		return fmt.Errorf("unknown filter_mode %q", m)
	}
	return nil
}

func roll(r dsp.Roll) error {
	if r.PreSeconds < 0 || r.PostSeconds < 0 || r.PreSeconds+r.PostSeconds <= 0 {
		return fmt.Errorf("segment must have a positive length, got pre %g post %g", r.PreSeconds, r.PostSeconds)
	}
	return nil
}

func validateClassifier(c classify.Config, dataset string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if c.Kind.NeedsTraining() {
		if err := trainstore.ValidateName(dataset); err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
	}
	return nil
}
