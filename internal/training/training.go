// Package training builds per-profile training sets from raw PCM recordings
// and captures new recordings from audio devices.
//
// Recordings are laid out as <root>/<profile>/<dataset>/<label>.pcm: one
// little-endian 16-bit mono file per label (per breathing mode for the
// breathing dataset). [Trainer.Train] extracts features from the recordings
// of one detector the same way that detector does at inference time and
// saves the result, replacing the previously stored set.
package training

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/audio"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// ErrNoRecordings is returned when none of a dataset's recordings exist.
var ErrNoRecordings = errors.New("training: no recordings")

// ErrNotTrainable is returned for detectors that use no training data.
var ErrNotTrainable = errors.New("training: detector uses no training data")

// Trainable lists the detectors that have training data, in training order.
var Trainable = []detect.Kind{detect.Activity, detect.Breathing, detect.Gesture}

// Config describes where recordings live and how features are extracted.
type Config struct {
	// Root is the recordings directory.
	Root string

	// SampleRate of the recordings in Hz. Zero means 16000.
	SampleRate int

	// ChunkSize is the capture chunk length the gesture envelope is filtered
	// in when the gesture detector filters per chunk. Zero means 1280.
	ChunkSize int

	// Detectors supplies labels, datasets and feature settings.
	Detectors detect.Config

	// BreathingModes names the breathing recordings. Mode i yields label
	// 2i for exhales and 2i+1 for inhales. Empty means "nose", "mouth".
	BreathingModes []string
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1280
	}
	if len(c.BreathingModes) == 0 {
		c.BreathingModes = []string{"nose", "mouth"}
	}
	return c
}

// RecordingPath returns the file holding the recording of label in dataset.
func (c Config) RecordingPath(profile, dataset, label string) string {
	return filepath.Join(c.Root, profile, dataset, label+".pcm")
}

// DatasetDir returns the directory name holding the recordings of detector
// k, which is also the name (or base name, for gestures) of its dataset.
func (c Config) DatasetDir(k detect.Kind) string {
	switch k {
	case detect.Activity:
		return c.Detectors.Activity.Dataset
	case detect.Breathing:
		return c.Detectors.Breathing.Dataset
	case detect.Gesture:
		return c.Detectors.Gesture.Dataset
	}
	return ""
}

// Recordings returns the recording names expected for detector k: the
// breathing modes for breathing and the detector labels otherwise.
func (c Config) Recordings(k detect.Kind) []string {
	if k == detect.Breathing {
		return c.withDefaults().BreathingModes
	}
	return c.Detectors.Labels(k)
}

// Result describes one trained dataset.
type Result struct {
	Dataset   string
	Exemplars int

	// Accuracy is the fraction of recording windows the detector's
	// classifier labels correctly. Only set when Evaluated.
	Accuracy  float64
	Evaluated bool

	Duration time.Duration
}

// Trainer turns recordings into stored training sets.
type Trainer struct {
	store   trainstore.Store
	cfg     Config
	metrics *observe.Metrics
}

// Option configures a [Trainer].
type Option func(*Trainer)

// WithMetrics records training durations to m instead of
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Trainer) { t.metrics = m }
}

// New creates a trainer saving to store.
func New(store trainstore.Store, cfg Config, opts ...Option) *Trainer {
	t := &Trainer{store: store, cfg: cfg.withDefaults()}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t
}

// Train builds and saves the datasets of detector k for profile. Gesture
// training yields one dataset per feature kind.
func (t *Trainer) Train(ctx context.Context, profile string, k detect.Kind) ([]Result, error) {
	if err := trainstore.ValidateName(profile); err != nil {
		return nil, fmt.Errorf("training: profile: %w", err)
	}
	ctx = observe.WithScope(ctx, observe.Scope{Profile: profile, Detector: string(k)})
	ctx, span := observe.StartSpan(ctx, "training.train")
	defer span.End()

	start := time.Now()
	var (
		sets map[string]datasetResult
		err  error
	)
	switch k {
	case detect.Activity:
		sets, err = t.activity(ctx, profile)
	case detect.Breathing:
		sets, err = t.breathing(profile)
	case detect.Gesture:
		sets, err = t.gesture(profile)
	case detect.Step:
		return nil, fmt.Errorf("%w: %s", ErrNotTrainable, k)
	default:
		return nil, fmt.Errorf("training: %w: %q", detect.ErrUnknownKind, k)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]Result, 0, len(sets))
	for _, name := range slices.Sorted(maps.Keys(sets)) {
		ds := sets[name]
		if err := t.store.Save(ctx, trainstore.Key{Profile: profile, Dataset: name}, ds.set); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("training: save %s: %w", name, err)
		}
		elapsed := time.Since(start)
		t.metrics.RecordTrain(ctx, name, elapsed)
		results = append(results, Result{
			Dataset:   name,
			Exemplars: ds.set.Len(),
			Accuracy:  ds.accuracy,
			Evaluated: ds.evaluated,
			Duration:  elapsed,
		})
		observe.Logger(ctx).Info("dataset trained",
			"dataset", name,
			"exemplars", ds.set.Len(),
		)
	}
	return results, nil
}

// TrainAll trains every trainable detector of profile concurrently. Datasets
// without recordings are skipped; all other failures are returned joined.
func (t *Trainer) TrainAll(ctx context.Context, profile string) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
		errs    []error
	)
	var g errgroup.Group
	for _, k := range Trainable {
		g.Go(func() error {
			res, err := t.Train(ctx, profile, k)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNoRecordings):
				slog.Warn("no recordings, skipping", "profile", profile, "detector", k)
			case err != nil:
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
			default:
				results = append(results, res...)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, func(a, b Result) int { return strings.Compare(a.Dataset, b.Dataset) })
	if len(results) == 0 && len(errs) == 0 {
		return nil, fmt.Errorf("%w for profile %q", ErrNoRecordings, profile)
	}
	return results, errors.Join(errs...)
}

// datasetResult is a built set plus its optional evaluation.
type datasetResult struct {
	set       classify.TrainingSet
	accuracy  float64
	evaluated bool
}

// recording is one decoded recording file.
type recording struct {
	name    string
	index   int
	samples []float64
}

// readRecordings loads the recordings named names from dataset. Missing
// files are skipped; ErrNoRecordings is returned when all are missing.
func (t *Trainer) readRecordings(profile, dataset string, names []string) ([]recording, error) {
	var out []recording
	for i, name := range names {
		path := t.cfg.RecordingPath(profile, dataset, name)
		pcm, err := audio.ReadPCMFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("recording missing", "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("training: read %s: %w", path, err)
		}
		samples := make([]float64, len(pcm))
		for j, s := range pcm {
			samples[j] = float64(s)
		}
		out = append(out, recording{name: name, index: i, samples: samples})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRecordings, filepath.Join(t.cfg.Root, profile, dataset))
	}
	return out, nil
}
