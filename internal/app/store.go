package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/earsense/internal/config"
	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/internal/resilience"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
	"github.com/MrWong99/earsense/pkg/trainstore/file"
	"github.com/MrWong99/earsense/pkg/trainstore/postgres"
	"github.com/MrWong99/earsense/pkg/trainstore/sqlite"
)

// Journal records emitted events. The sqlite backend implements it.
type Journal interface {
	Append(ctx context.Context, entries ...sqlite.Entry) error
}

// VectorSearcher is implemented by backends with server-side vector search.
type VectorSearcher interface {
	Searcher(key trainstore.Key) *postgres.Searcher
}

// Stores groups what [OpenStore] produced.
type Stores struct {
	// Store is the instrumented store the application uses.
	Store trainstore.Store

	// Fallback is set when a fallback directory is configured.
	Fallback *resilience.FallbackStore

	// Journal is set for the sqlite backend.
	Journal Journal

	// Searcher is set for the postgres backend.
	Searcher VectorSearcher
}

// OpenStore opens the configured training store backend, wraps it in a
// [resilience.FallbackStore] when cfg.FallbackDir is set and instruments it.
func OpenStore(ctx context.Context, cfg config.StoreConfig, m *observe.Metrics) (*Stores, error) {
	var (
		primary trainstore.Store
		out     Stores
	)
	switch cfg.Backend {
	case config.StoreFile:
		s, err := file.New(cfg.Dir)
		if err != nil {
			return nil, err
		}
		primary = s
	case config.StoreSQLite:
		s, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		primary = s
		out.Journal = s
	case config.StorePostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		primary = s
		out.Searcher = s
	default:
		return nil, fmt.Errorf("app: unknown store backend %q", cfg.Backend)
	}

	store := primary
	if cfg.FallbackDir != "" && cfg.Backend != config.StoreFile {
		local, err := file.New(cfg.FallbackDir)
		if err != nil {
			primary.Close()
			return nil, err
		}
		fs := resilience.NewFallbackStore(primary, string(cfg.Backend), resilience.FallbackConfig{})
		fs.AddFallback("file", local)
		out.Fallback = fs
		store = fs
	}

	out.Store = Instrument(store, string(cfg.Backend), m)
	slog.Info("training store opened",
		"backend", cfg.Backend,
		"fallback", out.Fallback != nil,
	)
	return &out, nil
}

// Instrument records every operation of s to m.StoreOperations.
func Instrument(s trainstore.Store, backend string, m *observe.Metrics) trainstore.Store {
	return &instrumentedStore{Store: s, backend: backend, m: m}
}

type instrumentedStore struct {
	trainstore.Store
	backend string
	m       *observe.Metrics
}

func (s *instrumentedStore) record(ctx context.Context, op string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, trainstore.ErrCorruptModel):
		status = "corrupt"
	default:
		status = "error"
	}
	s.m.RecordStoreOp(ctx, s.backend, op, status)
}

func (s *instrumentedStore) Load(ctx context.Context, key trainstore.Key) (classify.TrainingSet, error) {
	ts, err := s.Store.Load(ctx, key)
	s.record(ctx, "load", err)
	return ts, err
}

func (s *instrumentedStore) Save(ctx context.Context, key trainstore.Key, ts classify.TrainingSet) error {
	err := s.Store.Save(ctx, key, ts)
	s.record(ctx, "save", err)
	return err
}

func (s *instrumentedStore) Datasets(ctx context.Context, profile string) ([]string, error) {
	names, err := s.Store.Datasets(ctx, profile)
	s.record(ctx, "datasets", err)
	return names, err
}

// Ping forwards to the wrapped store when it can ping.
func (s *instrumentedStore) Ping(ctx context.Context) error {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ─── Classifier construction ─────────────────────────────────────────────────

// BuildClassifier loads what the detector of kind k needs for profile and
// builds its classifier. [detect.Step] needs none and yields nil.
//
// A missing or corrupt training set is not fatal: the classifier is built
// over an empty set and reports [classify.ErrEmptyModel] until the profile is
// retrained.
func BuildClassifier(ctx context.Context, store trainstore.Store, searcher VectorSearcher, cfg detect.Config, k detect.Kind, profile string) (classify.Classifier, error) {
	ccfg, ok := cfg.Classifier(k)
	if !ok {
		return nil, nil
	}
	key := trainstore.Key{Profile: profile, Dataset: cfg.Dataset(k)}

	if ccfg.Kind == classify.KindPGVector {
		if searcher == nil {
			return nil, fmt.Errorf("app: %s: classifier %q needs the postgres store", k, ccfg.Kind)
		}
		if err := key.Validate(); err != nil {
			return nil, err
		}
		return classify.NewSearchKNN(searcher.Searcher(key), max(ccfg.K, 1)), nil
	}

	var ts classify.TrainingSet
	if ccfg.Kind.NeedsTraining() {
		var err error
		ts, err = store.Load(ctx, key)
		switch {
		case errors.Is(err, trainstore.ErrCorruptModel):
			slog.Warn("app: training set unreadable, detector runs untrained",
				"key", key.String(), "error", err)
			ts = classify.TrainingSet{}
		case err != nil:
			return nil, fmt.Errorf("app: load %s: %w", key, err)
		case ts.Len() == 0:
			slog.Warn("app: no training data", "key", key.String(), "detector", k)
		}
	}

	c, err := classify.New(ccfg, ts)
	if err != nil {
		return nil, fmt.Errorf("app: build %s classifier: %w", k, err)
	}
	return c, nil
}

// journalEntry converts an event for the journal.
func journalEntry(sessionID, profile string, ev detect.Event) sqlite.Entry {
	return sqlite.Entry{
		SessionID:   sessionID,
		Profile:     profile,
		Detector:    string(ev.Detector),
		Label:       ev.Label,
		Name:        ev.Name,
		SampleIndex: ev.SampleIndex,
		Count:       ev.Count,
		Votes:       formatVotes(ev.Votes),
		OccurredAt:  ev.Time,
	}
}

// formatVotes renders votes as "label:n" pairs in label order.
func formatVotes(votes map[int]int) string {
	if len(votes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, l := range slices.Sorted(maps.Keys(votes)) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(l))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(votes[l]))
	}
	return b.String()
}
