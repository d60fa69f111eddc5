package classify

import (
	"context"
	"errors"
	"fmt"
)

// VoteWeights sets how many top-ranked exemplars of each metric cast a vote.
// A zero weight removes the metric from the vote.
type VoteWeights struct {
	Euclidean int `yaml:"euclidean"`
	Cosine    int `yaml:"cosine"`
	Pearson   int `yaml:"pearson"`
}

// DefaultVoteWeights returns top-3 Euclidean, top-1 cosine and top-1 Pearson.
func DefaultVoteWeights() VoteWeights {
	return VoteWeights{Euclidean: 3, Cosine: 1, Pearson: 1}
}

// Validate rejects negative weights and an all-zero vote.
func (w VoteWeights) Validate() error {
	var errs []error
	for _, mw := range []struct {
		name string
		n    int
	}{{"euclidean", w.Euclidean}, {"cosine", w.Cosine}, {"pearson", w.Pearson}} {
		if mw.n < 0 {
			errs = append(errs, fmt.Errorf("vote weight %s must be >= 0, got %d", mw.name, mw.n))
		}
	}
	if w.Euclidean+w.Cosine+w.Pearson == 0 {
		errs = append(errs, errors.New("at least one vote weight must be positive"))
	}
	return errors.Join(errs...)
}

func (w VoteWeights) of(m Metric) int {
	switch m {
	case Euclidean:
		return w.Euclidean
	case Cosine:
		return w.Cosine
	case Pearson:
		return w.Pearson
	}
	return 0
}

// Vote classifies by plurality across metrics: the top exemplars of each
// metric each add one vote for their label. The label with most votes wins;
// ties go to the lowest label id.
type Vote struct {
	set     TrainingSet
	weights VoteWeights
}

// NewVote builds a voting classifier from a snapshot of ts.
func NewVote(ts TrainingSet, w VoteWeights) (*Vote, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return &Vote{set: ts.Clone(), weights: w}, nil
}

// Classify implements [Classifier].
func (v *Vote) Classify(ctx context.Context, in Input) (Prediction, error) {
	if v.set.Len() == 0 {
		return Prediction{}, ErrEmptyModel
	}
	votes := make(map[int]int)
	for _, m := range Metrics {
		n := v.weights.of(m)
		if n == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Prediction{}, err
		}
		order := rank(v.set.Features, in.Vector, m)
		for _, idx := range order[:min(n, len(order))] {
			votes[v.set.Labels[idx]]++
		}
	}
	return Prediction{Label: plurality(votes), Votes: votes}, nil
}
