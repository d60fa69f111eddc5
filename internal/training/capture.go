package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/pkg/audio"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// ErrNoGesture is returned by [CaptureGesture] when no tap was found before
// the capture limit or the end of the source.
var ErrNoGesture = errors.New("training: no gesture captured")

// Record captures d of mono audio at sampleRate from dev into path and
// returns the number of samples written. The file is replaced only once the
// recording is complete; a failed or cancelled recording leaves the previous
// file untouched. A source that ends early is committed with what it gave.
func Record(ctx context.Context, dev audio.Device, path string, sampleRate int, d time.Duration) (int64, error) {
	want := int64(d.Seconds() * float64(sampleRate))
	if want <= 0 {
		return 0, fmt.Errorf("training: record: duration %v too short", d)
	}
	stream, err := dev.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("training: record: %w", err)
	}
	defer stream.Close()
	stream = audio.ConvertStream(stream, audio.Format{SampleRate: sampleRate, Channels: 1})

	w, err := audio.CreatePCMFile(path)
	if err != nil {
		return 0, fmt.Errorf("training: record: %w", err)
	}
	for w.Samples() < want {
		chunk, err := stream.Read(ctx)
		if errors.Is(err, io.EOF) {
			slog.Warn("source ended before the recording was complete",
				"path", path, "samples", w.Samples(), "want", want)
			break
		}
		if err != nil {
			w.Abort()
			return 0, fmt.Errorf("training: record: %w", err)
		}
		if rest := want - w.Samples(); int64(len(chunk)) > rest {
			chunk = chunk[:rest]
		}
		if err := w.Write(chunk); err != nil {
			w.Abort()
			return 0, fmt.Errorf("training: record: %w", err)
		}
	}
	if w.Samples() == 0 {
		w.Abort()
		return 0, fmt.Errorf("training: record: %w", io.ErrUnexpectedEOF)
	}
	n := w.Samples()
	if err := w.Commit(); err != nil {
		return 0, fmt.Errorf("training: record: %w", err)
	}
	return n, nil
}

// ─── Gesture capture ─────────────────────────────────────────────────────────

// CaptureConfig bounds a one-shot gesture capture.
type CaptureConfig struct {
	// SampleRate the source is converted to. Zero means 16000.
	SampleRate int

	// Limit is the longest capture before giving up. Zero means 10s.
	Limit time.Duration

	// EdgeChunks is the number of chunks at either end of the capture in
	// which peaks are ignored. Zero means 5.
	EdgeChunks int
}

// GestureSample is one captured tap, segmented for every feature kind.
type GestureSample struct {
	// Index is the tap position in the captured audio.
	Index int

	Features map[detect.FeatureKind][]float64
}

// CaptureGesture reads from dev until the first tap appears and returns it.
// Audio accumulates from the start of the capture; after every chunk the
// low-pass envelope is searched for peaks of at least MinAmplitude that are
// more than MinSeparation after the previous peak and at least EdgeChunks
// chunks away from either end. The last such peak is the tap.
func CaptureGesture(ctx context.Context, dev audio.Device, cfg detect.GestureConfig, cc CaptureConfig) (GestureSample, error) {
	if cc.SampleRate <= 0 {
		cc.SampleRate = 16000
	}
	if cc.Limit <= 0 {
		cc.Limit = 10 * time.Second
	}
	if cc.EdgeChunks <= 0 {
		cc.EdgeChunks = 5
	}
	limit := int(cc.Limit.Seconds() * float64(cc.SampleRate))
	pre, post := cfg.Segment.Samples(cc.SampleRate)

	stream, err := dev.Open(ctx)
	if err != nil {
		return GestureSample{}, fmt.Errorf("training: capture: %w", err)
	}
	defer stream.Close()
	stream = audio.ConvertStream(stream, audio.Format{SampleRate: cc.SampleRate, Channels: 1})

	buf := dsp.NewStreamBuffer(dsp.BufferConfig{
		Samples:    limit,
		SampleRate: cc.SampleRate,
		Filter:     dsp.FilterSpec{Kind: dsp.Lowpass, CutoffHz: cfg.CutoffHz},
		Mode:       dsp.FilterPerChunk,
	})
	var (
		chunkLen int
		low, raw []float64
	)
	for {
		chunk, err := stream.Read(ctx)
		if errors.Is(err, io.EOF) {
			return GestureSample{}, ErrNoGesture
		}
		if err != nil {
			return GestureSample{}, fmt.Errorf("training: capture: %w", err)
		}
		if buf.Len()+len(chunk) > limit {
			return GestureSample{}, fmt.Errorf("%w within %v", ErrNoGesture, cc.Limit)
		}
		buf.Push(chunk)
		chunkLen = max(chunkLen, len(chunk))
		if buf.FilteredMax() < cfg.MinAmplitude {
			continue
		}

		low = buf.Filtered(low)
		edge := cc.EdgeChunks * chunkLen
		if len(low)-edge <= edge {
			continue
		}
		deb := dsp.NewDebouncer(dsp.DebounceConfig{
			MinSeparation: cfg.MinSeparation,
			LowerGuard:    edge,
			UpperGuard:    len(low) - edge,
			Reference:     dsp.RefPreviousCandidate,
		})
		cand, ok, _ := deb.Select(low, dsp.FindPeaks(low, cfg.MinAmplitude), 0)
		if !ok {
			continue
		}

		raw = buf.Raw(raw)
		s := GestureSample{Index: cand.Index, Features: make(map[detect.FeatureKind][]float64, len(detect.FeatureKinds))}
		for _, f := range detect.FeatureKinds {
			vec, err := f.Vector(raw, low, cand.Index, pre, post, cfg.Window)
			if err != nil {
				return GestureSample{}, fmt.Errorf("training: capture: %w", err)
			}
			s.Features[f] = vec
		}
		return s, nil
	}
}

// AddGesture appends a captured tap labelled label to every gesture feature
// dataset of profile. The datasets must be index-aligned beforehand.
func (t *Trainer) AddGesture(ctx context.Context, profile string, label int, s GestureSample) error {
	base := t.cfg.Detectors.Gesture.Dataset
	sets := make(map[detect.FeatureKind]classify.TrainingSet, len(detect.FeatureKinds))
	n := -1
	for _, f := range detect.FeatureKinds {
		if len(s.Features[f]) == 0 {
			return fmt.Errorf("training: add gesture: sample has no %s features", f)
		}
		key := trainstore.Key{Profile: profile, Dataset: detect.GestureDataset(base, f)}
		ts, err := t.store.Load(ctx, key)
		if err != nil {
			return fmt.Errorf("training: add gesture: %w", err)
		}
		if n >= 0 && ts.Len() != n {
			return fmt.Errorf("training: add gesture: %w: gesture datasets hold %d and %d exemplars",
				classify.ErrMisaligned, n, ts.Len())
		}
		n = ts.Len()
		if ts.K == 0 {
			ts.K = t.cfg.Detectors.Gesture.Classifier.K
		}
		ts.Append(s.Features[f], label)
		sets[f] = ts
	}
	for _, f := range detect.FeatureKinds {
		key := trainstore.Key{Profile: profile, Dataset: detect.GestureDataset(base, f)}
		if err := t.store.Save(ctx, key, sets[f]); err != nil {
			return fmt.Errorf("training: add gesture: %w", err)
		}
	}
	return nil
}
