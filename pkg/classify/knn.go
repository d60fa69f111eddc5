package classify

import (
	"cmp"
	"context"
	"slices"
)

// KNN is a k-nearest-neighbour classifier over Euclidean distance.
type KNN struct {
	set TrainingSet
	k   int
}

// NewKNN builds a k-NN model from a snapshot of ts. k below 1 falls back to
// ts.K and then to 1.
func NewKNN(ts TrainingSet, k int) (*KNN, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if k < 1 {
		k = ts.K
	}
	if k < 1 {
		k = 1
	}
	return &KNN{set: ts.Clone(), k: k}, nil
}

// K returns the neighbour count.
func (m *KNN) K() int { return m.k }

// Classify implements [Classifier]. The k nearest exemplars vote; a tie goes
// to the label whose first vote came from the nearest exemplar.
func (m *KNN) Classify(ctx context.Context, in Input) (Prediction, error) {
	if m.set.Len() == 0 {
		return Prediction{}, ErrEmptyModel
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	order := rank(m.set.Features, in.Vector, Euclidean)
	k := min(m.k, len(order))

	votes := make(map[int]int, k)
	var firstSeen []int
	for _, idx := range order[:k] {
		l := m.set.Labels[idx]
		if votes[l] == 0 {
			firstSeen = append(firstSeen, l)
		}
		votes[l]++
	}
	best := firstSeen[0]
	for _, l := range firstSeen[1:] {
		if votes[l] > votes[best] {
			best = l
		}
	}
	return Prediction{Label: best, Votes: votes}, nil
}

// rank orders exemplar indices from closest to farthest under metric. Equal
// scores keep exemplar order.
func rank(features [][]float64, query []float64, metric Metric) []int {
	scores := make([]float64, len(features))
	for i, f := range features {
		s, _ := Similarity(metric, query, f)
		scores[i] = s
	}
	order := make([]int, len(features))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if metric == Euclidean {
			return cmp.Compare(scores[a], scores[b])
		}
		return cmp.Compare(scores[b], scores[a])
	})
	return order
}
