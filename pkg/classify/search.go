package classify

import (
	"context"
	"fmt"
)

// Neighbor is one result of a nearest-neighbour search.
type Neighbor struct {
	Label    int
	Distance float64
}

// Searcher finds the exemplars nearest to a query, closest first. It is
// implemented by stores with a vector index.
type Searcher interface {
	Nearest(ctx context.Context, query []float64, k int) ([]Neighbor, error)
}

// SearchKNN is a k-NN classifier whose neighbour search runs in a [Searcher].
// Voting and tie-breaking match [KNN].
type SearchKNN struct {
	s Searcher
	k int
}

// NewSearchKNN returns a classifier that asks s for the k nearest exemplars.
func NewSearchKNN(s Searcher, k int) *SearchKNN {
	return &SearchKNN{s: s, k: max(k, 1)}
}

// Classify implements [Classifier]. An empty search result yields
// [ErrEmptyModel].
func (c *SearchKNN) Classify(ctx context.Context, in Input) (Prediction, error) {
	nn, err := c.s.Nearest(ctx, in.Vector, c.k)
	if err != nil {
		return Prediction{}, fmt.Errorf("classify: nearest: %w", err)
	}
	if len(nn) == 0 {
		return Prediction{}, ErrEmptyModel
	}
	votes := make(map[int]int, len(nn))
	best := nn[0].Label
	for _, n := range nn {
		votes[n.Label]++
	}
	for _, n := range nn {
		if votes[n.Label] > votes[best] {
			best = n.Label
		}
	}
	return Prediction{Label: best, Votes: votes}, nil
}
