package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/MrWong99/earsense/internal/config"
	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/training"
)

var (
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// detectorColors colours events by the detector that emitted them.
var detectorColors = map[detect.Kind]*color.Color{
	detect.Activity:  color.New(color.FgYellow),
	detect.Gesture:   color.New(color.FgCyan),
	detect.Step:      color.New(color.FgGreen),
	detect.Breathing: color.New(color.FgMagenta),
}

// printer writes human readable output. color.NoColor disables colours when
// stdout is not a terminal.
type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) printer { return printer{w: w} }

func (p printer) prompt(format string, args ...any) {
	yellow.Fprintf(p.w, "● "+format+"\n", args...)
}

func (p printer) done(format string, args ...any) {
	green.Fprintf(p.w, "✓ "+format+"\n", args...)
}

func (p printer) event(ev detect.Event) {
	ts := ev.Time.Format("15:04:05.000")
	if ev.Detector == detect.Gesture && ev.Label == detect.IdleLabel {
		faint.Fprintf(p.w, "%s %-9s %s\n", ts, ev.Detector, ev.Name)
		return
	}
	c, ok := detectorColors[ev.Detector]
	if !ok {
		c = bold
	}
	fmt.Fprintf(p.w, "%s %-9s ", ts, ev.Detector)
	c.Fprint(p.w, ev.Name)
	switch {
	case ev.Detector == detect.Step:
		fmt.Fprintf(p.w, " #%d", ev.Count)
	case len(ev.Votes) > 0:
		faint.Fprintf(p.w, " votes=%v", ev.Votes)
	}
	faint.Fprintf(p.w, " @%d\n", ev.SampleIndex)
}

func (p printer) results(results []training.Result) {
	bold.Fprintf(p.w, "%-20s %9s %9s %10s\n", "DATASET", "EXEMPLARS", "ACCURACY", "TOOK")
	for _, r := range results {
		acc := "-"
		if r.Evaluated {
			acc = fmt.Sprintf("%.1f%%", r.Accuracy*100)
		}
		fmt.Fprintf(p.w, "%-20s %9d ", r.Dataset, r.Exemplars)
		accuracyColor(r.Evaluated, r.Accuracy).Fprintf(p.w, "%9s", acc)
		fmt.Fprintf(p.w, " %10s\n", r.Duration.Round(time.Millisecond))
	}
}

func (p printer) evaluations(evs []training.Evaluation) {
	if len(evs) == 0 {
		faint.Fprintln(p.w, "no datasets")
		return
	}
	for _, ev := range evs {
		bold.Fprintf(p.w, "%s", ev.Dataset)
		fmt.Fprintf(p.w, ": %d exemplars, %d labels", ev.Exemplars, ev.Labels)
		if ev.Exemplars == 0 {
			fmt.Fprintln(p.w)
			continue
		}
		fmt.Fprintf(p.w, ", %s accuracy ", ev.Classifier)
		accuracyColor(true, ev.Accuracy).Fprintf(p.w, "%.1f%%\n", ev.Accuracy*100)
		for _, s := range ev.Separation {
			faint.Fprintf(p.w, "  %-9s intra %8.3f [%8.3f, %8.3f]  inter %8.3f [%8.3f, %8.3f]\n",
				s.Metric, s.Intra.Mean, s.Intra.Min, s.Intra.Max, s.Inter.Mean, s.Inter.Min, s.Inter.Max)
		}
	}
}

func (p printer) datasets(profile string, names []string) {
	if len(names) == 0 {
		faint.Fprintf(p.w, "no datasets for %s\n", profile)
		return
	}
	for _, n := range names {
		fmt.Fprintln(p.w, n)
	}
}

func accuracyColor(evaluated bool, acc float64) *color.Color {
	switch {
	case !evaluated:
		return faint
	case acc >= 0.9:
		return green
	case acc >= 0.6:
		return yellow
	default:
		return red
	}
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        EarSense - startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Fprintf(w, "║  Sample rate     : %-19d ║\n", cfg.Audio.SampleRate)
	fmt.Fprintf(w, "║  Chunk size      : %-19d ║\n", cfg.Audio.ChunkSize)
	fmt.Fprintf(w, "║  Store           : %-19s ║\n", cfg.Store.Backend)
	if cfg.Store.FallbackDir != "" {
		fmt.Fprintf(w, "║  Fallback        : %-19s ║\n", cfg.Store.FallbackDir)
	}
	if cfg.Server.MaxSessions > 0 {
		fmt.Fprintf(w, "║  Max sessions    : %-19d ║\n", cfg.Server.MaxSessions)
	} else {
		fmt.Fprintf(w, "║  Max sessions    : %-19s ║\n", "(unlimited)")
	}
	fmt.Fprintf(w, "║  TLS             : %-19t ║\n", cfg.Server.TLS != nil)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}
