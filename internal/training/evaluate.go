package training

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// Evaluation summarises how well a stored dataset classifies itself.
type Evaluation struct {
	Dataset   string
	Exemplars int
	Labels    int

	// Classifier is the policy the accuracy was measured with.
	Classifier classify.Kind
	Accuracy   float64

	// Separation is empty for sets with fewer than two exemplars.
	Separation []classify.Separation
}

// Evaluate loads every dataset of profile and measures leave-in accuracy and
// label separability. Datasets are classified with the policy of the
// detector that reads them, or k-NN when that policy needs no training data
// or searches remotely.
func Evaluate(ctx context.Context, store trainstore.Store, profile string, cfg detect.Config) ([]Evaluation, error) {
	ctx = observe.WithScope(ctx, observe.Scope{Profile: profile})
	ctx, span := observe.StartSpan(ctx, "training.evaluate")
	defer span.End()

	names, err := store.Datasets(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("training: evaluate: %w", err)
	}
	out := make([]Evaluation, 0, len(names))
	for _, name := range names {
		ts, err := store.Load(ctx, trainstore.Key{Profile: profile, Dataset: name})
		if err != nil {
			return nil, fmt.Errorf("training: evaluate %s: %w", name, err)
		}
		ev := Evaluation{Dataset: name, Exemplars: ts.Len(), Labels: distinct(ts.Labels)}
		if ts.Len() == 0 {
			out = append(out, ev)
			continue
		}

		ccfg := evaluationClassifier(cfg, name)
		ev.Classifier = ccfg.Kind
		c, err := classify.New(ccfg, ts)
		if err != nil {
			return nil, fmt.Errorf("training: evaluate %s: %w", name, err)
		}
		if ev.Accuracy, err = classify.Accuracy(ctx, c, ts); err != nil {
			return nil, fmt.Errorf("training: evaluate %s: %w", name, err)
		}
		if ts.Len() >= 2 {
			if ev.Separation, err = classify.Separability(ts); err != nil {
				return nil, fmt.Errorf("training: evaluate %s: %w", name, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func evaluationClassifier(cfg detect.Config, dataset string) classify.Config {
	var c classify.Config
	switch {
	case dataset == cfg.Breathing.Dataset:
		c = cfg.Breathing.Classifier
	case strings.HasPrefix(dataset, cfg.Gesture.Dataset+"-"):
		c = cfg.Gesture.Classifier
	case dataset == cfg.Activity.Dataset:
		c = cfg.Activity.Classifier
	}
	if c.Kind != classify.KindKNN && c.Kind != classify.KindVote {
		c = classify.Config{Kind: classify.KindKNN}
	}
	return c
}

func distinct(labels []int) int {
	seen := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}
