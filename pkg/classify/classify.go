// Package classify turns feature vectors into labels.
//
// Three policies implement [Classifier]: [ThresholdRule] for the activity
// baseline, [KNN] for single-metric nearest neighbour and [Vote] for
// plurality voting across Euclidean distance, cosine similarity and Pearson
// correlation. [SearchKNN] delegates the neighbour search to an external
// index such as a pgvector table.
//
// Classifiers built from a [TrainingSet] take a private copy of it and are
// safe for concurrent use.
package classify

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyModel is returned when classifying against a training set with no
// exemplars.
var ErrEmptyModel = errors.New("classify: empty model")

// ErrMisaligned is returned when a training set's features and labels differ
// in length.
var ErrMisaligned = errors.New("classify: features and labels are not index-aligned")

// Input is what a detector hands to a classifier for one event.
type Input struct {
	// Vector is the feature vector compared against exemplars.
	Vector []float64

	// Energy and DominantBin feed the threshold rule.
	Energy      float64
	DominantBin int
}

// Prediction is the outcome of one classification.
type Prediction struct {
	Label int

	// Votes maps each label to the votes it received. Policies that do not
	// vote report a single vote for Label.
	Votes map[int]int
}

// Classifier maps an [Input] to a label.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Prediction, error)
}

// TrainingSet is a labelled collection of feature vectors. Features[i] is
// labelled Labels[i]; insertion order is recording order.
type TrainingSet struct {
	Features [][]float64
	Labels   []int

	// K is the neighbour count used when the set backs a k-NN model.
	K int
}

// Len returns the number of exemplars.
func (ts TrainingSet) Len() int { return len(ts.Labels) }

// Validate checks index alignment.
func (ts TrainingSet) Validate() error {
	if len(ts.Features) != len(ts.Labels) {
		return fmt.Errorf("%w: %d features, %d labels", ErrMisaligned, len(ts.Features), len(ts.Labels))
	}
	return nil
}

// Clone returns a deep copy of ts.
func (ts TrainingSet) Clone() TrainingSet {
	out := TrainingSet{
		Features: make([][]float64, len(ts.Features)),
		Labels:   append([]int(nil), ts.Labels...),
		K:        ts.K,
	}
	for i, f := range ts.Features {
		out.Features[i] = append([]float64(nil), f...)
	}
	return out
}

// Append adds one exemplar.
func (ts *TrainingSet) Append(features []float64, label int) {
	ts.Features = append(ts.Features, features)
	ts.Labels = append(ts.Labels, label)
}

// plurality returns the label with the most votes, preferring the lowest
// label on ties.
func plurality(votes map[int]int) int {
	best, bestVotes := 0, -1
	for label, n := range votes {
		if n > bestVotes || (n == bestVotes && label < best) {
			best, bestVotes = label, n
		}
	}
	return best
}
