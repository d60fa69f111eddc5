package classify

import (
	"context"
	"errors"
	"math"
)

// Accuracy classifies every exemplar of test with c and returns the fraction
// predicted correctly. An empty test set yields 0.
func Accuracy(ctx context.Context, c Classifier, test TrainingSet) (float64, error) {
	if err := test.Validate(); err != nil {
		return 0, err
	}
	if test.Len() == 0 {
		return 0, nil
	}
	var correct int
	for i, f := range test.Features {
		p, err := c.Classify(ctx, Input{Vector: f})
		if err != nil {
			return 0, err
		}
		if p.Label == test.Labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(test.Len()), nil
}

// Spread summarises a set of pairwise scores.
type Spread struct {
	Mean  float64
	Min   float64
	Max   float64
	Pairs int
}

func (s *Spread) add(v float64) {
	if s.Pairs == 0 {
		s.Min, s.Max = v, v
	}
	s.Min = math.Min(s.Min, v)
	s.Max = math.Max(s.Max, v)
	s.Mean += (v - s.Mean) / float64(s.Pairs+1)
	s.Pairs++
}

// Separation compares scores between exemplars of the same label (Intra)
// with scores between exemplars of different labels (Inter).
type Separation struct {
	Metric Metric
	Intra  Spread
	Inter  Spread
}

// Separability computes, for every metric, the spread of pairwise scores
// within and across labels. A well-separated set shows Euclidean Intra well
// below Inter and the similarity metrics the other way round.
func Separability(ts TrainingSet) ([]Separation, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if ts.Len() < 2 {
		return nil, errors.New("classify: separability needs at least two exemplars")
	}
	out := make([]Separation, 0, len(Metrics))
	for _, m := range Metrics {
		sep := Separation{Metric: m}
		for i := 0; i < ts.Len(); i++ {
			for j := i + 1; j < ts.Len(); j++ {
				v, _ := Similarity(m, ts.Features[i], ts.Features[j])
				if ts.Labels[i] == ts.Labels[j] {
					sep.Intra.add(v)
				} else {
					sep.Inter.add(v)
				}
			}
		}
		out = append(out, sep)
	}
	return out, nil
}
