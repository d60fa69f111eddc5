package config

import (
	"reflect"

	"github.com/MrWong99/earsense/internal/detect"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DetectorsChanged lists the detectors whose settings differ. Running
	// sessions keep their settings; new sessions pick up the change.
	DetectorsChanged []detect.Kind

	// RestartRequired lists sections that changed but are only read at
	// startup (e.g. "server.listen_addr", "store").
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.DetectorsChanged) == 0 && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Detectors, in declaration order.
	sections := []struct {
		kind     detect.Kind
		old, new any
	}{
		{detect.Activity, old.Detectors.Activity, new.Detectors.Activity},
		{detect.Gesture, old.Detectors.Gesture, new.Detectors.Gesture},
		{detect.Step, old.Detectors.Step, new.Detectors.Step},
		{detect.Breathing, old.Detectors.Breathing, new.Detectors.Breathing},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.DetectorsChanged = append(d.DetectorsChanged, s.kind)
		}
	}

	// Startup-only settings.
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}
