package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/earsense/internal/config"
	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/dsp"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  max_sessions: 8

audio:
  sample_rate: 16000
  chunk_size: 640
  device: "USB Headset"

store:
  backend: sqlite
  sqlite_path: /var/lib/earsense/earsense.db
  fallback_dir: /var/lib/earsense/fallback

telemetry:
  service_name: earsense-test

detectors:
  gesture:
    min_amplitude: 1200
    min_separation: 4000
    reference: previous_candidate
    segment:
      pre_seconds: 0.1
      post_seconds: 0.3
    feature: lowpass
    labels: [jaw, chin]
    classifier:
      kind: vote
      weights:
        euclidean: 5
        cosine: 0
        pearson: 1
  step:
    dedup: amplitude
  breathing:
    overlap: 0.25
    classifier:
      kind: knn
      k: 3
`

// ── Loading ──────────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.MaxSessions != 8 {
		t.Errorf("server.max_sessions: got %d, want 8", cfg.Server.MaxSessions)
	}
	if cfg.Audio.ChunkSize != 640 || cfg.Audio.Device != "USB Headset" {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Store.Backend != config.StoreSQLite {
		t.Errorf("store.backend: got %q, want %q", cfg.Store.Backend, config.StoreSQLite)
	}
	if cfg.Telemetry.ServiceName != "earsense-test" {
		t.Errorf("telemetry.service_name: got %q", cfg.Telemetry.ServiceName)
	}

	g := cfg.Detectors.Gesture
	if g.MinAmplitude != 1200 || g.MinSeparation != 4000 {
		t.Errorf("gesture thresholds: got amplitude %g separation %d", g.MinAmplitude, g.MinSeparation)
	}
	if g.Reference != dsp.RefPreviousCandidate {
		t.Errorf("gesture.reference: got %q", g.Reference)
	}
	// Keys not present keep their defaults.
	if g.LowerGuard != 10000 || g.CutoffHz != 50 {
		t.Errorf("gesture defaults lost: lower_guard %d cutoff %g", g.LowerGuard, g.CutoffHz)
	}
	if g.Segment != (dsp.Roll{PreSeconds: 0.1, PostSeconds: 0.3}) {
		t.Errorf("gesture.segment: got %+v", g.Segment)
	}
	if g.Feature != detect.FeatureLowpass {
		t.Errorf("gesture.feature: got %q", g.Feature)
	}
	if len(g.Labels) != 2 || g.Labels[1] != "chin" {
		t.Errorf("gesture.labels: got %v", g.Labels)
	}
	if g.Classifier.Weights != (classify.VoteWeights{Euclidean: 5, Cosine: 0, Pearson: 1}) {
		t.Errorf("gesture.classifier.weights: got %+v", g.Classifier.Weights)
	}
	if cfg.Detectors.Step.Dedup != dsp.DedupAmplitude {
		t.Errorf("step.dedup: got %q", cfg.Detectors.Step.Dedup)
	}
	if b := cfg.Detectors.Breathing; b.Overlap != 0.25 || b.Classifier.K != 3 {
		t.Errorf("breathing: overlap %g k %d", b.Overlap, b.Classifier.K)
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(in))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in, err)
		}
		def := config.Default()
		if cfg.Server != def.Server || cfg.Audio != def.Audio || cfg.Store != def.Store {
			t.Errorf("config for %q differs from defaults: %+v", in, cfg)
		}
		if cfg.Detectors.Gesture.Dataset != "gesture" {
			t.Errorf("gesture.dataset: got %q", cfg.Detectors.Gesture.Dataset)
		}
	}
}

func TestLoadFromReader_UnknownKey(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("error should mention the key, got: %v", err)
	}
}

func TestDefault_Validates(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: verbose\n",
			want: []string{"log_level"},
		},
		{
			name: "negative max sessions",
			yaml: "server:\n  max_sessions: -1\n",
			want: []string{"max_sessions"},
		},
		{
			name: "tls without key",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: []string{"server.tls"},
		},
		{
			name: "non-positive audio",
			yaml: "audio:\n  sample_rate: 0\n  chunk_size: -5\n",
			want: []string{"audio.sample_rate", "audio.chunk_size"},
		},
		{
			name: "unknown backend",
			yaml: "store:\n  backend: redis\n",
			want: []string{"store.backend"},
		},
		{
			name: "postgres without dsn",
			yaml: "store:\n  backend: postgres\n",
			want: []string{"postgres_dsn"},
		},
		{
			name: "detector problems",
			yaml: "detectors:\n  step:\n    cutoff_hz: 0\n  breathing:\n    overlap: 1\n",
			want: []string{"detectors.step", "cutoff_hz", "detectors.breathing", "overlap"},
		},
		{
			name: "several sections at once",
			yaml: "server:\n  log_level: loud\nstore:\n  backend: tape\n",
			want: []string{"log_level", "store.backend"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestEnums(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
	for _, b := range []config.StoreBackend{config.StoreFile, config.StoreSQLite, config.StorePostgres} {
		if !b.IsValid() {
			t.Errorf("%q should be valid", b)
		}
	}
	if config.StoreBackend("").IsValid() {
		t.Error("empty backend should be invalid")
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug:       slog.LevelDebug,
		config.LogInfo:        slog.LevelInfo,
		config.LogWarn:        slog.LevelWarn,
		config.LogError:       slog.LevelError,
		config.LogLevel("??"): slog.LevelInfo,
	}
	for l, want := range tests {
		if got := l.Level(); got != want {
			t.Errorf("%q.Level() = %v, want %v", l, got, want)
		}
	}
}
