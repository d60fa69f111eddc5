// Package trainstore persists labelled training sets per user profile.
//
// A training set is addressed by a [Key] of profile and dataset name, for
// example {"alice", "gesture-spectrum"}. Every backend honours the same
// contract:
//
//   - Load of a key that was never saved returns an empty set and no error.
//   - Save replaces the previous set atomically; a concurrent Load sees
//     either the old or the new set, never a mix.
//   - Stored data that cannot be decoded is reported as a
//     [*CorruptModelError] and never returned partially.
//
// Backends live in sub-packages: file (one binary file per key), sqlite
// (one row per key plus an event journal) and postgres (row-per-vector with a
// pgvector index for nearest-neighbour search).
package trainstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/earsense/pkg/classify"
)

// Store persists training sets.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the set stored under key, or an empty set when none
	// exists.
	Load(ctx context.Context, key Key) (classify.TrainingSet, error)

	// Save atomically replaces the set stored under key.
	Save(ctx context.Context, key Key, ts classify.TrainingSet) error

	// Datasets lists the dataset names stored for profile in lexical order.
	Datasets(ctx context.Context, profile string) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

// ErrInvalidKey is returned for keys that cannot be stored safely.
var ErrInvalidKey = errors.New("trainstore: invalid key")

// Key addresses one training set.
type Key struct {
	Profile string
	Dataset string
}

// String returns "profile/dataset".
func (k Key) String() string { return k.Profile + "/" + k.Dataset }

// Validate rejects empty components and names that could escape a directory
// when used as path elements.
func (k Key) Validate() error {
	if err := ValidateName(k.Profile); err != nil {
		return fmt.Errorf("%w: profile: %v", ErrInvalidKey, err)
	}
	if err := ValidateName(k.Dataset); err != nil {
		return fmt.Errorf("%w: dataset: %v", ErrInvalidKey, err)
	}
	return nil
}

// ValidateName checks a single profile or dataset name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("empty name")
	case len(name) > 128:
		return fmt.Errorf("name longer than 128 bytes")
	case name == "." || name == "..":
		return fmt.Errorf("reserved name %q", name)
	case strings.ContainsAny(name, `/\:`) || strings.ContainsRune(name, 0):
		return fmt.Errorf("name %q contains a path separator", name)
	}
	return nil
}
