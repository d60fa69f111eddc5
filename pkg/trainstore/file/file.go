// Package file stores training sets as one binary file per key under a root
// directory: <root>/<profile>/<dataset>.ests.
//
// Saves write a temporary file in the target directory, sync it and rename it
// over the old file, so readers never observe a partially written set.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// Ext is the file extension of stored training sets.
const Ext = ".ests"

// Store is a directory-backed [trainstore.Store].
type Store struct {
	root string
}

var _ trainstore.Store = (*Store)(nil)

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// Path returns the file that holds key.
func (s *Store) Path(key trainstore.Key) string {
	return filepath.Join(s.root, key.Profile, key.Dataset+Ext)
}

// Load implements [trainstore.Store].
func (s *Store) Load(ctx context.Context, key trainstore.Key) (classify.TrainingSet, error) {
	if err := key.Validate(); err != nil {
		return classify.TrainingSet{}, err
	}
	if err := ctx.Err(); err != nil {
		return classify.TrainingSet{}, err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return classify.TrainingSet{}, nil
	}
	if err != nil {
		return classify.TrainingSet{}, fmt.Errorf("file store: load %s: %w", key, err)
	}
	ts, err := trainstore.Unmarshal(data)
	if err != nil {
		return classify.TrainingSet{}, trainstore.WithKey(err, key)
	}
	return ts, nil
}

// Save implements [trainstore.Store].
func (s *Store) Save(ctx context.Context, key trainstore.Key, ts classify.TrainingSet) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := trainstore.Marshal(ts)
	if err != nil {
		return fmt.Errorf("file store: save %s: %w", key, err)
	}
	if err := WriteAtomic(s.Path(key), data); err != nil {
		return fmt.Errorf("file store: save %s: %w", key, err)
	}
	return nil
}

// Datasets implements [trainstore.Store].
func (s *Store) Datasets(_ context.Context, profile string) ([]string, error) {
	if err := trainstore.ValidateName(profile); err != nil {
		return nil, fmt.Errorf("%w: profile: %v", trainstore.ErrInvalidKey, err)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, profile))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: list %s: %w", profile, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	slices.Sort(names)
	return names, nil
}

// Close implements [trainstore.Store]. It is a no-op.
func (s *Store) Close() error { return nil }

// WriteAtomic writes data to path via a synced temporary file in the same
// directory and a rename.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(name)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(name, path); err != nil {
		return err
	}
	committed = true
	return nil
}
