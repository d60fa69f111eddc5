package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/earsense/internal/app"
	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/internal/training"
	"github.com/MrWong99/earsense/pkg/audio"
)

// shutdownTimeout bounds the graceful shutdown of serve and listen.
const shutdownTimeout = 15 * time.Second

// parse parses args into fs. Flag errors were already printed by fs.
func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	err := fs.Parse(args)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return err
	case err != nil:
		return errUsage
	case fs.NArg() > 0:
		fmt.Fprintf(fs.Output(), "%s: unexpected arguments %q\n", fs.Name(), fs.Args())
		return errUsage
	}
	return nil
}

// kind resolves a detector name.
func (e *env) kind(name string) (detect.Kind, error) {
	k := detect.Kind(name)
	if k.IsValid() {
		return k, nil
	}
	known := make([]string, len(detect.Kinds))
	for i, kk := range detect.Kinds {
		known[i] = string(kk)
	}
	return "", e.names.Unknown("detector", name, known)
}

// device returns the file device for path, or the capture device when path
// is empty.
func (e *env) device(path, deviceName string, realtime bool) audio.Device {
	format := audio.Format{SampleRate: e.cfg.Audio.SampleRate, Channels: 1}
	if path != "" {
		return &audio.FileDevice{
			Path:         path,
			Format:       format,
			ChunkSamples: e.cfg.Audio.ChunkSize,
			Realtime:     realtime,
		}
	}
	return &audio.CaptureDevice{Format: format, DeviceName: deviceName}
}

// trainingConfig returns the recording layout rooted at root.
func (e *env) trainingConfig(root string) training.Config {
	return training.Config{
		Root:       root,
		SampleRate: e.cfg.Audio.SampleRate,
		ChunkSize:  e.cfg.Audio.ChunkSize,
		Detectors:  e.cfg.Detectors,
	}
}

// openStore opens the configured training store. The caller closes it.
func (e *env) openStore(ctx context.Context) (*app.Stores, error) {
	return app.OpenStore(ctx, e.cfg.Store, observe.DefaultMetrics())
}

func closeStore(st *app.Stores) {
	if err := st.Store.Close(); err != nil {
		slog.Warn("close training store", "err", err)
	}
}

// ─── serve ───────────────────────────────────────────────────────────────────

func runServe(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	watch := fs.Bool("watch", true, "reload the config file when it changes")
	if err := parse(fs, args); err != nil {
		return err
	}

	opts := []app.Option{app.WithLogLevel(e.level)}
	if *watch {
		if _, err := os.Stat(e.configPath); err == nil {
			opts = append(opts, app.WithConfigWatch(e.configPath, 0))
		}
	}

	printStartupSummary(e.out, e.cfg)

	a, err := app.New(ctx, e.cfg, opts...)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := a.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := errors.Join(runErr, a.Shutdown(shutdownCtx)); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// ─── listen ──────────────────────────────────────────────────────────────────

func runListen(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	detector := fs.String("detector", string(detect.Gesture), "detector to run: activity, gesture, step or breathing")
	profile := fs.String("profile", "", "profile whose training data classifies events")
	file := fs.String("file", "", "raw PCM file to read instead of the microphone")
	realtime := fs.Bool("realtime", false, "pace file reads like a live source")
	deviceName := fs.String("device", e.cfg.Audio.Device, "input device name filter")
	if err := parse(fs, args); err != nil {
		return err
	}
	k, err := e.kind(*detector)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, e.cfg)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}()

	name := *deviceName
	if *file != "" {
		name = *file
	}
	h, err := a.Sessions().Start(ctx, app.StartRequest{
		Profile:    *profile,
		Detector:   k,
		Device:     e.device(*file, *deviceName, *realtime),
		DeviceName: name,
	})
	if err != nil {
		return err
	}
	slog.Info("listening", "session_id", h.ID(), "detector", k, "profile", *profile, "device", name)

	p := newPrinter(e.out)
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return nil
		case ev, ok := <-h.Events():
			if !ok {
				return h.Wait(ctx)
			}
			p.event(ev)
		}
	}
}

// ─── record ──────────────────────────────────────────────────────────────────

func runRecord(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	profile := fs.String("profile", "", "profile to record for (required)")
	dataset := fs.String("dataset", string(detect.Gesture), "detector the recording trains: activity, gesture or breathing")
	label := fs.String("label", "", "label (or breathing mode) being recorded (required)")
	seconds := fs.Float64("seconds", 10, "recording length")
	root := fs.String("recordings", "recordings", "recordings directory")
	deviceName := fs.String("device", e.cfg.Audio.Device, "input device name filter")
	capture := fs.Bool("capture", false, "capture a single gesture straight into the training set")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *profile == "" || *label == "" {
		fmt.Fprintln(fs.Output(), "record: -profile and -label are required")
		return errUsage
	}
	k, err := e.kind(*dataset)
	if err != nil {
		return err
	}
	if !slices.Contains(training.Trainable, k) {
		return fmt.Errorf("%s: %w", k, training.ErrNotTrainable)
	}

	tcfg := e.trainingConfig(*root)
	names := tcfg.Recordings(k)
	index := slices.Index(names, *label)
	if index < 0 {
		return e.names.Unknown(string(k)+" label", *label, names)
	}
	dev := e.device("", *deviceName, false)
	p := newPrinter(e.out)

	if *capture {
		if k != detect.Gesture {
			return fmt.Errorf("-capture records gestures only, not %s", k)
		}
		st, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		p.prompt("tap %q now", *label)
		s, err := training.CaptureGesture(ctx, dev, e.cfg.Detectors.Gesture, training.CaptureConfig{
			SampleRate: e.cfg.Audio.SampleRate,
		})
		if err != nil {
			return err
		}
		tr := training.New(st.Store, tcfg, training.WithMetrics(observe.DefaultMetrics()))
		if err := tr.AddGesture(ctx, *profile, index, s); err != nil {
			return err
		}
		p.done("captured %q at sample %d", *label, s.Index)
		return nil
	}

	path := tcfg.RecordingPath(*profile, tcfg.DatasetDir(k), *label)
	d := time.Duration(*seconds * float64(time.Second))
	p.prompt("recording %q for %s", *label, d)
	n, err := training.Record(ctx, dev, path, e.cfg.Audio.SampleRate, d)
	if err != nil {
		return err
	}
	p.done("wrote %d samples to %s", n, path)
	return nil
}

// ─── train ───────────────────────────────────────────────────────────────────

func runTrain(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	profile := fs.String("profile", "", "profile to train (required)")
	root := fs.String("recordings", "recordings", "recordings directory")
	dataset := fs.String("dataset", "", "train only this detector's datasets")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *profile == "" {
		fmt.Fprintln(fs.Output(), "train: -profile is required")
		return errUsage
	}

	st, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)
	tr := training.New(st.Store, e.trainingConfig(*root), training.WithMetrics(observe.DefaultMetrics()))

	var results []training.Result
	if *dataset != "" {
		k, kerr := e.kind(*dataset)
		if kerr != nil {
			return kerr
		}
		results, err = tr.Train(ctx, *profile, k)
	} else {
		results, err = tr.TrainAll(ctx, *profile)
	}
	// TrainAll reports failures next to the datasets that did train.
	newPrinter(e.out).results(results)
	return err
}

// ─── evaluate ────────────────────────────────────────────────────────────────

func runEvaluate(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	profile := fs.String("profile", "", "profile to evaluate (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *profile == "" {
		fmt.Fprintln(fs.Output(), "evaluate: -profile is required")
		return errUsage
	}

	st, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	evs, err := training.Evaluate(ctx, st.Store, *profile, e.cfg.Detectors)
	if err != nil {
		return err
	}
	newPrinter(e.out).evaluations(evs)
	return nil
}

// ─── datasets ────────────────────────────────────────────────────────────────

func runDatasets(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("datasets", flag.ContinueOnError)
	profile := fs.String("profile", "", "profile to list (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *profile == "" {
		fmt.Fprintln(fs.Output(), "datasets: -profile is required")
		return errUsage
	}

	st, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	names, err := st.Store.Datasets(ctx, *profile)
	if err != nil {
		return err
	}
	newPrinter(e.out).datasets(*profile, names)
	return nil
}
