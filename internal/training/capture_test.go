package training_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/training"
	"github.com/MrWong99/earsense/pkg/audio"
	audiomock "github.com/MrWong99/earsense/pkg/audio/mock"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
	storemock "github.com/MrWong99/earsense/pkg/trainstore/mock"
)

// chunked splits samples into chunks of size samples.
func chunked(samples []int16, size int) [][]int16 {
	var out [][]int16
	for start := 0; start < len(samples); start += size {
		out = append(out, samples[start:min(start+size, len(samples))])
	}
	return out
}

func device(chunks [][]int16) *audiomock.Device {
	return &audiomock.Device{OpenResult: &audiomock.Stream{Chunks: chunks}}
}

func TestRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stops at duration", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "alice", "gesture", "jaw.pcm")
		dev := device(chunked(constant(3*1280, 7), 1280))

		n, err := training.Record(ctx, dev, path, rate, 200*time.Millisecond)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if n != 3200 {
			t.Errorf("wrote %d samples, want 3200", n)
		}
		got, err := audio.ReadPCMFile(path)
		if err != nil {
			t.Fatalf("ReadPCMFile: %v", err)
		}
		if len(got) != 3200 || got[3199] != 7 {
			t.Errorf("file holds %d samples", len(got))
		}
	})
	t.Run("short source is committed", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "jaw.pcm")
		n, err := training.Record(ctx, device(chunked(constant(1280, 1), 1280)), path, rate, time.Second)
		if err != nil || n != 1280 {
			t.Fatalf("Record = %d, %v; want 1280, nil", n, err)
		}
	})
	t.Run("failed read keeps the previous file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "jaw.pcm")
		writePCM(t, path, []int16{1, 2, 3})
		dev := &audiomock.Device{OpenResult: &audiomock.Stream{
			Chunks: chunked(constant(1280, 9), 1280),
			EndErr: errors.New("usb unplugged"),
		}}

		if _, err := training.Record(ctx, dev, path, rate, time.Second); err == nil {
			t.Fatal("expected an error")
		}
		got, err := audio.ReadPCMFile(path)
		if err != nil || !slices.Equal(got, []int16{1, 2, 3}) {
			t.Errorf("previous recording = %v, %v", got, err)
		}
		entries, _ := os.ReadDir(filepath.Dir(path))
		if len(entries) != 1 {
			t.Errorf("directory holds %d entries, want only the previous recording", len(entries))
		}
	})
	t.Run("device unavailable", func(t *testing.T) {
		t.Parallel()
		dev := &audiomock.Device{OpenError: audio.ErrDeviceUnavailable}
		_, err := training.Record(ctx, dev, filepath.Join(t.TempDir(), "x.pcm"), rate, time.Second)
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			t.Errorf("err = %v, want ErrDeviceUnavailable", err)
		}
	})
	t.Run("no audio", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "x.pcm")
		if _, err := training.Record(ctx, device(nil), path, rate, time.Second); err == nil {
			t.Fatal("expected an error")
		}
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("empty recording was committed: %v", err)
		}
	})
}

func TestCaptureGesture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := detect.DefaultConfig().Gesture

	t.Run("first tap after the edge guard", func(t *testing.T) {
		t.Parallel()
		// The tap ends at 13299; it is accepted once five chunks follow it.
		dev := device(chunked(bursts(20*1280, 400, 20000, 12900), 1280))

		s, err := training.CaptureGesture(ctx, dev, cfg, training.CaptureConfig{})
		if err != nil {
			t.Fatalf("CaptureGesture: %v", err)
		}
		if s.Index != 13299 {
			t.Errorf("Index = %d, want 13299", s.Index)
		}
		pre, post := cfg.Segment.Samples(rate)
		for _, f := range detect.FeatureKinds {
			if len(s.Features[f]) != pre+post {
				t.Errorf("%s features have %d values, want %d", f, len(s.Features[f]), pre+post)
			}
		}
		if !slices.Contains(s.Features[detect.FeatureRaw], 20000) {
			t.Error("raw segment misses the tap")
		}
	})
	t.Run("source ends", func(t *testing.T) {
		t.Parallel()
		_, err := training.CaptureGesture(ctx, device(chunked(constant(5*1280, 0), 1280)), cfg, training.CaptureConfig{})
		if !errors.Is(err, training.ErrNoGesture) {
			t.Errorf("err = %v, want ErrNoGesture", err)
		}
	})
	t.Run("limit reached", func(t *testing.T) {
		t.Parallel()
		dev := device(chunked(constant(20*1280, 0), 1280))
		_, err := training.CaptureGesture(ctx, dev, cfg, training.CaptureConfig{Limit: 500 * time.Millisecond})
		if !errors.Is(err, training.ErrNoGesture) {
			t.Errorf("err = %v, want ErrNoGesture", err)
		}
	})
}

func TestAddGesture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sample := training.GestureSample{Features: map[detect.FeatureKind][]float64{
		detect.FeatureRaw:      {1, 2},
		detect.FeatureLowpass:  {3, 4},
		detect.FeatureSpectrum: {5, 6},
	}}

	t.Run("appends to every feature set", func(t *testing.T) {
		t.Parallel()
		tr, store, _ := newTrainer(t, t.TempDir())
		for _, label := range []int{1, 2} {
			if err := tr.AddGesture(ctx, "alice", label, sample); err != nil {
				t.Fatalf("AddGesture: %v", err)
			}
		}
		for _, f := range detect.FeatureKinds {
			ts := load(t, store, detect.GestureDataset("gesture", f))
			if !slices.Equal(ts.Labels, []int{1, 2}) {
				t.Errorf("%s labels = %v", f, ts.Labels)
			}
		}
		if got := load(t, store, "gesture-lowpass").Features[0]; !slices.Equal(got, []float64{3, 4}) {
			t.Errorf("lowpass features = %v", got)
		}
	})
	t.Run("misaligned sets", func(t *testing.T) {
		t.Parallel()
		tr, store, _ := newTrainer(t, t.TempDir())
		key := trainstore.Key{Profile: "alice", Dataset: "gesture-lowpass"}
		if err := store.Save(ctx, key, classify.TrainingSet{Features: [][]float64{{1}}, Labels: []int{0}}); err != nil {
			t.Fatal(err)
		}
		if err := tr.AddGesture(ctx, "alice", 1, sample); !errors.Is(err, classify.ErrMisaligned) {
			t.Errorf("err = %v, want ErrMisaligned", err)
		}
	})
	t.Run("missing feature", func(t *testing.T) {
		t.Parallel()
		tr := training.New(storemock.New(), training.Config{Detectors: detect.DefaultConfig()})
		partial := training.GestureSample{Features: map[detect.FeatureKind][]float64{detect.FeatureRaw: {1}}}
		if err := tr.AddGesture(ctx, "alice", 0, partial); err == nil {
			t.Error("expected an error")
		}
	})
}
