package dsp

import (
	"fmt"
	"math"
)

// SeparationRef selects what a peak's distance is measured against.
type SeparationRef string

const (
	// RefLastAccepted measures against the most recently accepted peak,
	// carried across detection cycles in absolute stream positions. There is
	// no reference before the first acceptance.
	RefLastAccepted SeparationRef = "last_accepted"

	// RefPreviousCandidate measures against the previous candidate peak of
	// the same cycle, accepted or not, starting from window index 0.
	RefPreviousCandidate SeparationRef = "previous_candidate"
)

// IsValid reports whether r is a recognised separation reference.
func (r SeparationRef) IsValid() bool {
	return r == RefLastAccepted || r == RefPreviousCandidate
}

// DebounceConfig holds the rejection thresholds for one detector. Indices
// and distances are in samples.
type DebounceConfig struct {
	// MinSeparation rejects a peak whose distance to the reference is at most
	// this many samples.
	MinSeparation int `yaml:"min_separation"`

	// LowerGuard rejects peaks at or before this window index.
	LowerGuard int `yaml:"lower_guard"`

	// UpperGuard rejects peaks at or after this window index. Zero or less
	// disables the upper guard.
	UpperGuard int `yaml:"upper_guard"`

	// Reference selects the separation reference. Empty means
	// [RefLastAccepted].
	Reference SeparationRef `yaml:"reference"`
}

// Validate reports configuration errors.
func (c DebounceConfig) Validate() error {
	if c.MinSeparation < 0 {
		return fmt.Errorf("min_separation must be >= 0, got %d", c.MinSeparation)
	}
	if c.LowerGuard < 0 {
		return fmt.Errorf("lower_guard must be >= 0, got %d", c.LowerGuard)
	}
	if c.UpperGuard > 0 && c.UpperGuard <= c.LowerGuard {
		return fmt.Errorf("upper_guard (%d) must be greater than lower_guard (%d)", c.UpperGuard, c.LowerGuard)
	}
	if c.Reference != "" && !c.Reference.IsValid() {
		return fmt.Errorf("unknown separation reference %q", c.Reference)
	}
	return nil
}

// Rejections counts the peaks discarded in one detection cycle.
type Rejections struct {
	Separation int
	Guard      int
}

// Debouncer turns the raw peak list of each detection cycle into at most one
// [Candidate]: the last peak that passes the guard band and separation rules.
type Debouncer struct {
	cfg DebounceConfig

	last     int64
	haveLast bool
}

// NewDebouncer creates a debouncer with no accepted history.
func NewDebouncer(cfg DebounceConfig) *Debouncer {
	if !cfg.Reference.IsValid() {
		cfg.Reference = RefLastAccepted
	}
	return &Debouncer{cfg: cfg}
}

// Select applies the debounce policy to peaks found in window, where offset
// is the absolute stream index of window[0]. Only the most recent valid peak
// is returned; earlier valid peaks of the same cycle are discarded.
func (d *Debouncer) Select(window []float64, peaks []int, offset int64) (Candidate, bool, Rejections) {
	var (
		rej  Rejections
		best Candidate
		ok   bool
	)
	prev := offset
	for _, p := range peaks {
		abs := offset + int64(p)
		if p <= d.cfg.LowerGuard || (d.cfg.UpperGuard > 0 && p >= d.cfg.UpperGuard) {
			rej.Guard++
			if d.cfg.Reference == RefPreviousCandidate {
				prev = abs
			}
			continue
		}

		tooClose := false
		switch d.cfg.Reference {
		case RefPreviousCandidate:
			tooClose = abs-prev <= int64(d.cfg.MinSeparation)
			prev = abs
		default:
			tooClose = d.haveLast && abs-d.last <= int64(d.cfg.MinSeparation)
		}
		if tooClose {
			rej.Separation++
			continue
		}

		d.last = abs
		d.haveLast = true
		best = Candidate{Index: p, Absolute: abs, Amplitude: window[p]}
		ok = true
	}
	return best, ok, rej
}

// Reset forgets the accepted history.
func (d *Debouncer) Reset() {
	d.last = 0
	d.haveLast = false
}

// DedupMode selects how repeated events are recognised.
type DedupMode string

const (
	// DedupNone admits every candidate.
	DedupNone DedupMode = "none"

	// DedupAmplitude rejects a candidate whose amplitude exactly equals that
	// of a previously admitted one.
	DedupAmplitude DedupMode = "amplitude"

	// DedupProximity rejects a candidate within a tolerance of the previously
	// admitted absolute index.
	DedupProximity DedupMode = "proximity"
)

// IsValid reports whether m is a recognised dedup mode.
func (m DedupMode) IsValid() bool {
	switch m {
	case DedupNone, DedupAmplitude, DedupProximity:
		return true
	}
	return false
}

// amplitudeMemory bounds how many admitted amplitudes are remembered.
const amplitudeMemory = 256

// Deduper suppresses candidates that repeat an already admitted event, such
// as the same step seen again after the window slid forward.
type Deduper struct {
	mode      DedupMode
	tolerance int64

	lastAbs  int64
	haveLast bool

	amps    map[float64]struct{}
	ampRing []float64
	ampNext int
}

// NewDeduper creates a deduper. tolerance is only used by [DedupProximity].
func NewDeduper(mode DedupMode, tolerance int) *Deduper {
	if !mode.IsValid() {
		mode = DedupProximity
	}
	return &Deduper{
		mode:      mode,
		tolerance: int64(max(tolerance, 0)),
		amps:      make(map[float64]struct{}),
	}
}

// Mode returns the configured dedup mode.
func (d *Deduper) Mode() DedupMode { return d.mode }

// Admit reports whether c is a new event and, if so, remembers it.
func (d *Deduper) Admit(c Candidate) bool {
	switch d.mode {
	case DedupAmplitude:
		if math.IsNaN(c.Amplitude) {
			return false
		}
		if _, seen := d.amps[c.Amplitude]; seen {
			return false
		}
		d.rememberAmplitude(c.Amplitude)
	case DedupProximity:
		if d.haveLast {
			diff := c.Absolute - d.lastAbs
			if diff < 0 {
				diff = -diff
			}
			if diff <= d.tolerance {
				return false
			}
		}
		d.lastAbs = c.Absolute
		d.haveLast = true
	}
	return true
}

// Reset forgets every admitted event.
func (d *Deduper) Reset() {
	d.haveLast = false
	d.lastAbs = 0
	clear(d.amps)
	d.ampRing = d.ampRing[:0]
	d.ampNext = 0
}

func (d *Deduper) rememberAmplitude(a float64) {
	if len(d.ampRing) < amplitudeMemory {
		d.ampRing = append(d.ampRing, a)
	} else {
		delete(d.amps, d.ampRing[d.ampNext])
		d.ampRing[d.ampNext] = a
		d.ampNext = (d.ampNext + 1) % amplitudeMemory
	}
	d.amps[a] = struct{}{}
}
