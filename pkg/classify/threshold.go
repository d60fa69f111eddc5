package classify

import (
	"context"
	"errors"
	"fmt"
)

// Activity labels produced by [ThresholdRule].
const (
	ActivityWalking = iota
	ActivityRunning
	ActivitySpeaking
	ActivityStill
)

// ActivityNames indexes activity labels.
var ActivityNames = []string{"Walking", "Running", "Speaking", "Still"}

// ThresholdConfig holds the cutoffs of [ThresholdRule].
type ThresholdConfig struct {
	// StillEnergy is the L1 energy under which a window counts as still.
	StillEnergy float64 `yaml:"still_energy"`

	// SpeakingBin is the dominant FFT bin above which a window counts as
	// speech.
	SpeakingBin int `yaml:"speaking_bin"`

	// RunningEnergy is the L1 energy at or above which movement counts as
	// running.
	RunningEnergy float64 `yaml:"running_energy"`
}

// DefaultThresholds returns the cutoffs for 1 s windows at 16 kHz.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		StillEnergy:   3_000_000,
		SpeakingBin:   120,
		RunningEnergy: 10_000_000,
	}
}

// Validate reports inconsistent cutoffs.
func (c ThresholdConfig) Validate() error {
	var errs []error
	if c.StillEnergy < 0 {
		errs = append(errs, fmt.Errorf("still_energy must be >= 0, got %g", c.StillEnergy))
	}
	if c.RunningEnergy < c.StillEnergy {
		errs = append(errs, fmt.Errorf("running_energy (%g) must be >= still_energy (%g)", c.RunningEnergy, c.StillEnergy))
	}
	if c.SpeakingBin < 0 {
		errs = append(errs, fmt.Errorf("speaking_bin must be >= 0, got %d", c.SpeakingBin))
	}
	return errors.Join(errs...)
}

// ThresholdRule classifies activity from window energy and dominant bin:
// still below StillEnergy, speaking above SpeakingBin, walking below
// RunningEnergy and running otherwise.
type ThresholdRule struct {
	cfg ThresholdConfig
}

// NewThresholdRule returns a threshold classifier with the given cutoffs.
func NewThresholdRule(cfg ThresholdConfig) *ThresholdRule {
	return &ThresholdRule{cfg: cfg}
}

// Classify implements [Classifier]. It never fails.
func (r *ThresholdRule) Classify(_ context.Context, in Input) (Prediction, error) {
	label := ActivityRunning
	switch {
	case in.Energy < r.cfg.StillEnergy:
		label = ActivityStill
	case in.DominantBin > r.cfg.SpeakingBin:
		label = ActivitySpeaking
	case in.Energy < r.cfg.RunningEnergy:
		label = ActivityWalking
	}
	return Prediction{Label: label, Votes: map[int]int{label: 1}}, nil
}
