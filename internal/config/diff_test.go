package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/earsense/internal/config"
	"github.com/MrWong99/earsense/internal/detect"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, config.Default())
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level needs no restart, got %v", d.RestartRequired)
	}
}

func TestDiff_DetectorsChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Detectors.Gesture.Labels = []string{"jaw", "left temple", "right temple", "nose"}
	new.Detectors.Breathing.Gate = 600

	d := config.Diff(old, new)
	want := []detect.Kind{detect.Gesture, detect.Breathing}
	if !slices.Equal(d.DetectorsChanged, want) {
		t.Errorf("DetectorsChanged = %v, want %v", d.DetectorsChanged, want)
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9999"
	new.Store.Backend = config.StoreSQLite
	new.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "server.tls", "store"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.Empty() {
		t.Error("diff should not be empty")
	}
}
