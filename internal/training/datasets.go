package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
)

// ─── Activity ────────────────────────────────────────────────────────────────

// activity builds one exemplar per recording: the mean window energy. Every
// window is also run through the threshold rule and the agreement with the
// recording's label is reported as accuracy.
func (t *Trainer) activity(ctx context.Context, profile string) (map[string]datasetResult, error) {
	cfg := t.cfg.Detectors.Activity
	recs, err := t.readRecordings(profile, t.cfg.DatasetDir(detect.Activity), cfg.Labels)
	if err != nil {
		return nil, err
	}

	thresholds := classify.DefaultThresholds()
	if cfg.Classifier.Kind == classify.KindThreshold {
		thresholds = cfg.Classifier.Threshold
	}
	rule := classify.NewThresholdRule(thresholds)

	size := t.samples(cfg.WindowSeconds)
	ts := classify.TrainingSet{K: 1}
	var correct, total int
	for _, rec := range recs {
		windows := dsp.SplitWindows(rec.samples, size)
		if len(windows) == 0 {
			slog.Warn("empty recording", "profile", profile, "label", rec.name)
			continue
		}
		var energy float64
		for _, w := range windows {
			sum, err := dsp.Summarize(w, cfg.Window)
			if err != nil {
				return nil, fmt.Errorf("training: activity: %w", err)
			}
			energy += sum.Energy
			p, err := rule.Classify(ctx, classify.Input{Energy: sum.Energy, DominantBin: sum.DominantBin})
			if err != nil {
				return nil, fmt.Errorf("training: activity: %w", err)
			}
			if p.Label == rec.index {
				correct++
			}
			total++
		}
		ts.Append([]float64{energy / float64(len(windows))}, rec.index)
	}

	res := datasetResult{set: ts}
	if total > 0 {
		res.accuracy = float64(correct) / float64(total)
		res.evaluated = true
	}
	return map[string]datasetResult{cfg.Dataset: res}, nil
}

// ─── Breathing ───────────────────────────────────────────────────────────────

// breathing high-passes each recording, cuts it into windows and keeps the
// segment around each window's maximum. Windows alternate between inhale and
// exhale, starting with an inhale.
func (t *Trainer) breathing(profile string) (map[string]datasetResult, error) {
	cfg := t.cfg.Detectors.Breathing
	modes := t.cfg.BreathingModes
	if len(modes)*2 > len(cfg.Labels) {
		slog.Warn("breathing labels do not name every mode and phase",
			"modes", len(modes), "labels", len(cfg.Labels))
	}
	recs, err := t.readRecordings(profile, t.cfg.DatasetDir(detect.Breathing), modes)
	if err != nil {
		return nil, err
	}

	size := t.samples(cfg.WindowSeconds)
	pre, post := cfg.Segment.Samples(t.cfg.SampleRate)
	hp := dsp.NewFilter(dsp.Highpass, cfg.CutoffHz, t.cfg.SampleRate)

	k := cfg.Classifier.K
	if k <= 0 {
		k = 1
	}
	ts := classify.TrainingSet{K: k}
	for _, rec := range recs {
		hp.Reset()
		filtered := hp.Apply(nil, rec.samples)
		inhale := true
		for _, w := range dsp.SplitWindows(filtered, size) {
			seg, peak := dsp.ExtractAroundMax(w, pre, post)
			if peak < 0 {
				continue
			}
			label := rec.index * 2
			if inhale {
				label++
			}
			inhale = !inhale
			ts.Append(seg, label)
		}
	}
	return map[string]datasetResult{cfg.Dataset: {set: ts}}, nil
}

// ─── Gesture ─────────────────────────────────────────────────────────────────

// gesture finds every tap in each recording's envelope and stores one
// exemplar per tap in each feature dataset, so the sets stay index-aligned.
func (t *Trainer) gesture(profile string) (map[string]datasetResult, error) {
	cfg := t.cfg.Detectors.Gesture
	recs, err := t.readRecordings(profile, t.cfg.DatasetDir(detect.Gesture), cfg.Labels)
	if err != nil {
		return nil, err
	}
	pre, post := cfg.Segment.Samples(t.cfg.SampleRate)

	sets := make(map[detect.FeatureKind]*classify.TrainingSet, len(detect.FeatureKinds))
	for _, f := range detect.FeatureKinds {
		sets[f] = &classify.TrainingSet{K: cfg.Classifier.K}
	}
	for _, rec := range recs {
		var taps []int
		var raw, low []float64
		if len(rec.samples) > 0 {
			raw, low = t.envelope(rec.samples, cfg)
			taps = GesturePeaks(low, cfg, pre, post)
		}
		if len(taps) == 0 {
			slog.Warn("no taps found in recording", "profile", profile, "label", rec.name)
			continue
		}
		for _, p := range taps {
			for _, f := range detect.FeatureKinds {
				vec, err := f.Vector(raw, low, p, pre, post, cfg.Window)
				if err != nil {
					return nil, fmt.Errorf("training: gesture: %w", err)
				}
				sets[f].Append(vec, rec.index)
			}
		}
	}

	out := make(map[string]datasetResult, len(sets))
	for f, ts := range sets {
		out[detect.GestureDataset(cfg.Dataset, f)] = datasetResult{set: *ts}
	}
	return out, nil
}

// envelope filters samples the way the gesture detector's stream buffer
// does, feeding them in capture-sized chunks.
func (t *Trainer) envelope(samples []float64, cfg detect.GestureConfig) (raw, low []float64) {
	buf := dsp.NewStreamBuffer(dsp.BufferConfig{
		Samples:    len(samples),
		SampleRate: t.cfg.SampleRate,
		Filter:     dsp.FilterSpec{Kind: dsp.Lowpass, CutoffHz: cfg.CutoffHz},
		Mode:       cfg.FilterMode,
	})
	for start := 0; start < len(samples); start += t.cfg.ChunkSize {
		buf.PushFloat(samples[start:min(start+t.cfg.ChunkSize, len(samples))])
	}
	return buf.Raw(nil), buf.Filtered(nil)
}

// GesturePeaks returns every envelope peak of a whole recording that is at
// least MinAmplitude, more than MinSeparation after the previously accepted
// one and far enough from both ends for a full pre+post segment.
func GesturePeaks(low []float64, cfg detect.GestureConfig, pre, post int) []int {
	upper := len(low) - post
	if upper <= pre {
		return nil
	}
	deb := dsp.NewDebouncer(dsp.DebounceConfig{
		MinSeparation: cfg.MinSeparation,
		LowerGuard:    max(pre-1, 0),
		UpperGuard:    upper + 1,
		Reference:     dsp.RefLastAccepted,
	})
	var taps []int
	for _, p := range dsp.FindPeaks(low, cfg.MinAmplitude) {
		if _, ok, _ := deb.Select(low, []int{p}, 0); ok {
			taps = append(taps, p)
		}
	}
	return taps
}

func (t *Trainer) samples(seconds float64) int {
	return max(int(math.Round(seconds*float64(t.cfg.SampleRate))), 1)
}
