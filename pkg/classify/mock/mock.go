// Package mock provides test doubles for the classify package interfaces.
//
// Use Classifier to return canned predictions from a detector under test and
// to inspect the inputs it produced. Use Searcher to stand in for a vector
// index behind classify.SearchKNN.
//
// Example:
//
//	c := &mock.Classifier{Result: classify.Prediction{Label: 2}}
//	det := detect.NewGesture(cfg, 16000, c, observe.DefaultMetrics())
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/earsense/pkg/classify"
)

// Classifier is a mock implementation of classify.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Result is returned by Classify when Results is exhausted.
	Result classify.Prediction

	// Results, if non-empty, are returned in order by successive calls.
	Results []classify.Prediction

	// Err, if non-nil, is returned as the error from Classify.
	Err error

	// Calls records the input of every Classify call in order.
	Calls []classify.Input
}

// Classify records the call and returns the next canned prediction.
func (c *Classifier) Classify(_ context.Context, in classify.Input) (classify.Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in.Vector = slices.Clone(in.Vector)
	c.Calls = append(c.Calls, in)
	if c.Err != nil {
		return classify.Prediction{}, c.Err
	}
	if len(c.Results) > 0 {
		p := c.Results[0]
		c.Results = c.Results[1:]
		return p, nil
	}
	return c.Result, nil
}

// CallCount returns the number of Classify calls. Thread-safe.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Ensure Classifier implements classify.Classifier at compile time.
var _ classify.Classifier = (*Classifier)(nil)

// NearestCall records a single invocation of Searcher.Nearest.
type NearestCall struct {
	Query []float64
	K     int
}

// Searcher is a mock implementation of classify.Searcher.
type Searcher struct {
	mu sync.Mutex

	// Neighbors is returned by Nearest, truncated to k.
	Neighbors []classify.Neighbor

	// Err, if non-nil, is returned as the error from Nearest.
	Err error

	// Calls records every call to Nearest.
	Calls []NearestCall
}

// Nearest records the call and returns at most k of Neighbors.
func (s *Searcher) Nearest(_ context.Context, query []float64, k int) ([]classify.Neighbor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, NearestCall{Query: slices.Clone(query), K: k})
	if s.Err != nil {
		return nil, s.Err
	}
	return slices.Clone(s.Neighbors[:min(k, len(s.Neighbors))]), nil
}

// Ensure Searcher implements classify.Searcher at compile time.
var _ classify.Searcher = (*Searcher)(nil)
