package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrWong99/earsense/internal/app"
	"github.com/MrWong99/earsense/internal/config"
	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
	storemock "github.com/MrWong99/earsense/pkg/trainstore/mock"
)

var breathingSet = classify.TrainingSet{
	Features: [][]float64{{1, 2, 3}, {3, 2, 1}},
	Labels:   []int{0, 1},
	K:        1,
}

func TestOpenStore_File(t *testing.T) {
	t.Parallel()
	m, reader := newMetrics(t)
	dir := t.TempDir()

	st, err := app.OpenStore(context.Background(), config.StoreConfig{
		Backend:     config.StoreFile,
		Dir:         dir,
		FallbackDir: filepath.Join(dir, "ignored"),
	}, m)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Store.Close()

	if st.Fallback != nil || st.Journal != nil || st.Searcher != nil {
		t.Errorf("file backend produced extras: %+v", st)
	}

	ctx := context.Background()
	key := trainstore.Key{Profile: "alice", Dataset: "breathing"}
	if err := st.Store.Save(ctx, key, breathingSet); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := st.Store.Load(ctx, key)
	if err != nil || got.Len() != 2 {
		t.Fatalf("Load = %d exemplars, %v", got.Len(), err)
	}
	if n := counterSum(t, reader, "earsense.store.operations"); n != 2 {
		t.Errorf("store operations = %d, want 2", n)
	}
}

func TestOpenStore_SQLiteWithFallback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, _ := newMetrics(t)

	st, err := app.OpenStore(context.Background(), config.StoreConfig{
		Backend:     config.StoreSQLite,
		SQLitePath:  filepath.Join(dir, "earsense.db"),
		FallbackDir: filepath.Join(dir, "fallback"),
	}, m)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Store.Close()

	if st.Journal == nil {
		t.Error("sqlite backend has no journal")
	}
	if st.Fallback == nil {
		t.Fatal("fallback not configured")
	}
	if status := st.Fallback.Status(); len(status) != 2 || status[0].Name != "sqlite" || status[1].Name != "file" {
		t.Errorf("fallback chain = %+v", status)
	}

	p, ok := st.Store.(interface{ Ping(context.Context) error })
	if !ok {
		t.Fatal("instrumented store does not expose Ping")
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	t.Parallel()
	m, _ := newMetrics(t)
	if _, err := app.OpenStore(context.Background(), config.StoreConfig{Backend: "s3"}, m); err == nil {
		t.Fatal("expected an error")
	}
}

func TestInstrument_Statuses(t *testing.T) {
	t.Parallel()
	m, reader := newMetrics(t)
	inner := storemock.New()
	s := app.Instrument(inner, "mock", m)
	ctx := context.Background()
	key := trainstore.Key{Profile: "alice", Dataset: "gesture-raw"}

	_ = s.Save(ctx, key, breathingSet)
	inner.LoadErr = &trainstore.CorruptModelError{Key: key, Reason: "truncated"}
	_, _ = s.Load(ctx, key)
	inner.DatasetsErr = errors.New("down")
	_, _ = s.Datasets(ctx, "alice")

	if n := counterSum(t, reader, "earsense.store.operations"); n != 3 {
		t.Errorf("store operations = %d, want 3", n)
	}
}

func TestBuildClassifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := detect.DefaultConfig()

	store := storemock.New()
	if err := store.Save(ctx, trainstore.Key{Profile: "alice", Dataset: "breathing"}, breathingSet); err != nil {
		t.Fatal(err)
	}

	t.Run("step needs none", func(t *testing.T) {
		t.Parallel()
		c, err := app.BuildClassifier(ctx, store, nil, cfg, detect.Step, "")
		if err != nil || c != nil {
			t.Errorf("got %v, %v; want nil, nil", c, err)
		}
	})
	t.Run("threshold skips the store", func(t *testing.T) {
		t.Parallel()
		s := storemock.New()
		c, err := app.BuildClassifier(ctx, s, nil, cfg, detect.Activity, "alice")
		if err != nil || c == nil {
			t.Fatalf("got %v, %v", c, err)
		}
		if len(s.LoadCalls) != 0 {
			t.Error("threshold classifier loaded training data")
		}
	})
	t.Run("trained knn", func(t *testing.T) {
		t.Parallel()
		c, err := app.BuildClassifier(ctx, store, nil, cfg, detect.Breathing, "alice")
		if err != nil {
			t.Fatalf("BuildClassifier: %v", err)
		}
		p, err := c.Classify(ctx, classify.Input{Vector: []float64{3, 2, 1}})
		if err != nil || p.Label != 1 {
			t.Errorf("Classify = %+v, %v; want label 1", p, err)
		}
	})
	t.Run("untrained reports empty model", func(t *testing.T) {
		t.Parallel()
		c, err := app.BuildClassifier(ctx, store, nil, cfg, detect.Breathing, "bob")
		if err != nil {
			t.Fatalf("BuildClassifier: %v", err)
		}
		if _, err := c.Classify(ctx, classify.Input{Vector: []float64{1}}); !errors.Is(err, classify.ErrEmptyModel) {
			t.Errorf("Classify err = %v, want ErrEmptyModel", err)
		}
	})
}
