// Command earsense detects and classifies in-ear audio events.
//
// Usage:
//
//	earsense serve    [-config path]
//	earsense listen   -detector gesture -profile alice [-file rec.pcm]
//	earsense record   -profile alice -dataset gesture -label jaw [-seconds 10 | -capture]
//	earsense train    -profile alice [-recordings dir] [-dataset gesture]
//	earsense evaluate -profile alice
//	earsense datasets -profile alice
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/MrWong99/earsense/internal/config"
	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/internal/suggest"
)

// command is one subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{name: "serve", summary: "serve the streaming API", run: runServe},
	{name: "listen", summary: "run a detector on the local microphone or a file", run: runListen},
	{name: "record", summary: "record training audio", run: runRecord},
	{name: "train", summary: "build training sets from recordings", run: runTrain},
	{name: "evaluate", summary: "report accuracy and separability of stored sets", run: runEvaluate},
	{name: "datasets", summary: "list the stored datasets of a profile", run: runDatasets},
}

// env is what every subcommand shares.
type env struct {
	cfg        *config.Config
	configPath string
	level      *slog.LevelVar
	names      *suggest.Matcher
	out        io.Writer
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// ── Global flags ──────────────────────────────────────────────────────────
	global := flag.NewFlagSet("earsense", flag.ContinueOnError)
	configPath := global.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := global.String("env", ".env", "environment file loaded before the config")
	global.Usage = usage(global)
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}

	names := suggest.New()
	cmd, err := lookup(names, rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "earsense: %v\n", err)
		return 2
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "earsense: %v\n", err)
		return 1
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "earsense: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, providerConfig(cfg))
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	e := &env{cfg: cfg, configPath: *configPath, level: level, names: names, out: os.Stdout}
	if err := cmd.run(ctx, e, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, errUsage) {
			return 2
		}
		slog.Error(cmd.name+" failed", "err", err)
		return 1
	}
	return 0
}

// errUsage marks errors already reported by a flag set.
var errUsage = errors.New("usage")

// lookup finds the subcommand called name.
func lookup(names *suggest.Matcher, name string) (command, error) {
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == name })
	if i >= 0 {
		return commands[i], nil
	}
	known := make([]string, len(commands))
	for i, c := range commands {
		known[i] = c.name
	}
	return command{}, names.Unknown("command", name, known)
}

// loadConfig reads path, falling back to the defaults when it does not exist,
// and applies EARSENSE_* overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return nil, err
	}
	if err := config.ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintln(out, "usage: earsense [-config path] [-env path] <command> [flags]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "commands:")
		for _, c := range commands {
			fmt.Fprintf(out, "  %-9s %s\n", c.name, c.summary)
		}
		fmt.Fprintln(out)
		fs.PrintDefaults()
	}
}

// providerConfig describes this process to the telemetry backends.
func providerConfig(cfg *config.Config) observe.ProviderConfig {
	detectors := make([]string, len(detect.Kinds))
	for i, k := range detect.Kinds {
		detectors[i] = string(k)
	}
	return observe.ProviderConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		SampleRate:   cfg.Audio.SampleRate,
		Detectors:    detectors,
		StoreBackend: string(cfg.Store.Backend),
	}
}
