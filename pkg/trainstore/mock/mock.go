// Package mock provides an in-memory test double for trainstore.Store.
//
// Sets are deep-copied on Save and Load, so tests can mutate what they pass
// in or get back without affecting the store.
//
// Example:
//
//	s := mock.New()
//	_ = s.Save(ctx, trainstore.Key{Profile: "p", Dataset: "gesture"}, ts)
//	s.LoadErr = errors.New("disk on fire")
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// Store is a mock implementation of trainstore.Store.
type Store struct {
	mu   sync.Mutex
	sets map[trainstore.Key]classify.TrainingSet

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// SaveErr, if non-nil, is returned by Save and nothing is stored.
	SaveErr error

	// DatasetsErr, if non-nil, is returned by Datasets.
	DatasetsErr error

	// LoadCalls and SaveCalls record the keys passed, in order.
	LoadCalls []trainstore.Key
	SaveCalls []trainstore.Key

	// Closed is set by Close.
	Closed bool
}

// New returns an empty mock store.
func New() *Store {
	return &Store{sets: make(map[trainstore.Key]classify.TrainingSet)}
}

// Load records the call and returns a copy of the stored set.
func (s *Store) Load(_ context.Context, key trainstore.Key) (classify.TrainingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadCalls = append(s.LoadCalls, key)
	if s.LoadErr != nil {
		return classify.TrainingSet{}, s.LoadErr
	}
	if err := key.Validate(); err != nil {
		return classify.TrainingSet{}, err
	}
	return s.sets[key].Clone(), nil
}

// Save records the call and stores a copy of ts.
func (s *Store) Save(_ context.Context, key trainstore.Key, ts classify.TrainingSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, key)
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ts.Validate(); err != nil {
		return err
	}
	if s.sets == nil {
		s.sets = make(map[trainstore.Key]classify.TrainingSet)
	}
	s.sets[key] = ts.Clone()
	return nil
}

// Datasets returns the dataset names saved for profile.
func (s *Store) Datasets(_ context.Context, profile string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DatasetsErr != nil {
		return nil, s.DatasetsErr
	}
	names := []string{}
	for k := range s.sets {
		if k.Profile == profile {
			names = append(names, k.Dataset)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Ensure Store implements trainstore.Store at compile time.
var _ trainstore.Store = (*Store)(nil)
