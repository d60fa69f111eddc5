package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// FallbackStore implements [trainstore.Store] over a primary backend and
// read-only fallbacks.
//
// Loads and listings fail over to the next healthy backend. Saves go to the
// primary only, so a retrain never succeeds against a stale copy; after a
// successful save or primary load the set is mirrored to every fallback so
// they can serve it later. Mirror failures are logged and ignored.
type FallbackStore struct {
	group *FallbackGroup[trainstore.Store]
}

// Compile-time interface assertion.
var _ trainstore.Store = (*FallbackStore)(nil)

// NewFallbackStore creates a [FallbackStore] with primary as the preferred
// backend.
func NewFallbackStore(primary trainstore.Store, primaryName string, cfg FallbackConfig) *FallbackStore {
	return &FallbackStore{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *FallbackStore) AddFallback(name string, s trainstore.Store) {
	f.group.AddFallback(name, s)
}

// Status reports the breaker state of every backend.
func (f *FallbackStore) Status() []EntryStatus { return f.group.Status() }

// Load returns the set from the first healthy backend.
func (f *FallbackStore) Load(ctx context.Context, key trainstore.Key) (classify.TrainingSet, error) {
	ts, served, err := executeNamed(f.group, func(s trainstore.Store) (classify.TrainingSet, error) {
		return s.Load(ctx, key)
	})
	if err != nil {
		return classify.TrainingSet{}, fmt.Errorf("resilience: load %s: %w", key, err)
	}
	if served == f.group.entries[0].name && ts.Len() > 0 {
		f.mirror(ctx, key, ts)
	}
	return ts, nil
}

// Save stores ts on the primary and mirrors it to the fallbacks.
func (f *FallbackStore) Save(ctx context.Context, key trainstore.Key, ts classify.TrainingSet) error {
	primary := &f.group.entries[0]
	err := primary.breaker.Execute(func() error {
		return primary.value.Save(ctx, key, ts)
	})
	if err != nil {
		return fmt.Errorf("resilience: save %s on %s: %w", key, primary.name, err)
	}
	f.mirror(ctx, key, ts)
	return nil
}

// Datasets lists the datasets of profile from the first healthy backend.
func (f *FallbackStore) Datasets(ctx context.Context, profile string) ([]string, error) {
	names, err := ExecuteWithResult(f.group, func(s trainstore.Store) ([]string, error) {
		return s.Datasets(ctx, profile)
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: datasets %s: %w", profile, err)
	}
	return names, nil
}

// Close closes every backend and returns the joined errors.
func (f *FallbackStore) Close() error {
	var errs []error
	for _, e := range f.group.entries {
		if err := e.value.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks the primary backend if it supports pinging.
func (f *FallbackStore) Ping(ctx context.Context) error {
	p, ok := f.group.entries[0].value.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func (f *FallbackStore) mirror(ctx context.Context, key trainstore.Key, ts classify.TrainingSet) {
	for _, e := range f.group.entries[1:] {
		if err := e.value.Save(ctx, key, ts); err != nil {
			slog.Warn("resilience: mirror to fallback failed",
				"backend", e.name, "key", key.String(), "error", err)
		}
	}
}
