package classify

import (
	"errors"
	"fmt"
)

// Kind names a classifier policy.
type Kind string

const (
	KindThreshold Kind = "threshold"
	KindKNN       Kind = "knn"
	KindVote      Kind = "vote"

	// KindPGVector is a k-NN whose search runs in PostgreSQL. It needs a
	// [Searcher] and is built with [NewSearchKNN] by the caller that owns the
	// store.
	KindPGVector Kind = "pgvector"
)

// IsValid reports whether k is a known policy.
func (k Kind) IsValid() bool {
	switch k {
	case KindThreshold, KindKNN, KindVote, KindPGVector:
		return true
	}
	return false
}

// NeedsTraining reports whether the policy classifies against a training set.
func (k Kind) NeedsTraining() bool { return k != KindThreshold }

// ErrNeedsSearcher is returned by [New] for [KindPGVector].
var ErrNeedsSearcher = errors.New("classify: policy needs a searcher")

// Config selects and parameterises a classifier.
type Config struct {
	Kind Kind `yaml:"kind"`

	// K is the neighbour count for knn and pgvector. Zero uses the training
	// set's K.
	K int `yaml:"k"`

	Weights   VoteWeights     `yaml:"weights"`
	Threshold ThresholdConfig `yaml:"threshold"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if !c.Kind.IsValid() {
		return fmt.Errorf("unknown classifier kind %q", c.Kind)
	}
	if c.K < 0 {
		return fmt.Errorf("k must be >= 0, got %d", c.K)
	}
	switch c.Kind {
	case KindVote:
		return c.Weights.Validate()
	case KindThreshold:
		return c.Threshold.Validate()
	}
	return nil
}

// New builds the classifier described by cfg over ts. The threshold policy
// ignores ts.
func New(cfg Config, ts TrainingSet) (Classifier, error) {
	switch cfg.Kind {
	case KindThreshold:
		return NewThresholdRule(cfg.Threshold), nil
	case KindKNN:
		return NewKNN(ts, cfg.K)
	case KindVote:
		return NewVote(ts, cfg.Weights)
	case KindPGVector:
		return nil, ErrNeedsSearcher
	default:
		return nil, fmt.Errorf("classify: unknown kind %q", cfg.Kind)
	}
}
