package classify_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/classify/mock"
	"github.com/MrWong99/earsense/pkg/dsp"
)

func activityInput(t *testing.T, x []float64) classify.Input {
	t.Helper()
	s, err := dsp.Summarize(x, dsp.WindowBoxcar)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	return classify.Input{Vector: []float64{s.Energy}, Energy: s.Energy, DominantBin: s.DominantBin}
}

func sine(n int, freq, amp float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/16000)
	}
	return x
}

func TestThresholdRule_Walking(t *testing.T) {
	t.Parallel()

	// 1 s of a 60 Hz tone at amplitude 400: energy about 4.07e6, bin 60.
	in := activityInput(t, sine(16000, 60, 400))
	if in.Energy < 3e6 || in.Energy > 1e7 {
		t.Fatalf("fixture energy %v outside the walking band", in.Energy)
	}
	p, err := classify.NewThresholdRule(classify.DefaultThresholds()).Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if p.Label != classify.ActivityWalking {
		t.Errorf("label = %s, want Walking", classify.ActivityNames[p.Label])
	}
}

func TestThresholdRule_Still(t *testing.T) {
	t.Parallel()

	in := activityInput(t, sine(16000, 200, 90))
	p, _ := classify.NewThresholdRule(classify.DefaultThresholds()).Classify(context.Background(), in)
	if p.Label != classify.ActivityStill {
		t.Errorf("label = %s, want Still", classify.ActivityNames[p.Label])
	}
}

func TestThresholdRule_Table(t *testing.T) {
	t.Parallel()

	rule := classify.NewThresholdRule(classify.DefaultThresholds())
	tests := []struct {
		name   string
		energy float64
		bin    int
		want   int
	}{
		{name: "still ignores bin", energy: 2e6, bin: 500, want: classify.ActivityStill},
		{name: "speaking", energy: 5e6, bin: 121, want: classify.ActivitySpeaking},
		{name: "bin at cutoff is not speaking", energy: 5e6, bin: 120, want: classify.ActivityWalking},
		{name: "running", energy: 1e7, bin: 10, want: classify.ActivityRunning},
		{name: "loud speech", energy: 5e7, bin: 300, want: classify.ActivitySpeaking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, _ := rule.Classify(context.Background(), classify.Input{Energy: tt.energy, DominantBin: tt.bin})
			if p.Label != tt.want {
				t.Errorf("label = %d, want %d", p.Label, tt.want)
			}
		})
	}
}

func TestKNN_IdenticalQuery(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{
		Features: [][]float64{{0, 0, 1}, {0, 1, 0}, {5, 5, 5}},
		Labels:   []int{0, 0, 1},
	}
	m, err := classify.NewKNN(ts, 1)
	if err != nil {
		t.Fatalf("NewKNN: %v", err)
	}
	p, err := m.Classify(context.Background(), classify.Input{Vector: []float64{5, 5, 5}})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if p.Label != 1 {
		t.Errorf("label = %d, want 1", p.Label)
	}
}

func TestKNN_TieGoesToNearest(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{
		Features: [][]float64{{10}, {1}, {20}, {3}},
		Labels:   []int{4, 7, 4, 7},
	}
	m, _ := classify.NewKNN(ts, 2)
	// Neighbours of 9: 10 (label 4) then 3 (label 7). One vote each.
	p, _ := m.Classify(context.Background(), classify.Input{Vector: []float64{9}})
	if p.Label != 4 {
		t.Errorf("label = %d, want 4", p.Label)
	}
	if p.Votes[4] != 1 || p.Votes[7] != 1 {
		t.Errorf("votes = %v, want one each", p.Votes)
	}
}

func TestKNN_KFallsBackToTrainingSet(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{Features: [][]float64{{1}, {2}, {3}}, Labels: []int{0, 1, 1}, K: 3}
	m, _ := classify.NewKNN(ts, 0)
	if m.K() != 3 {
		t.Errorf("K = %d, want 3", m.K())
	}
	p, _ := m.Classify(context.Background(), classify.Input{Vector: []float64{1}})
	if p.Label != 1 {
		t.Errorf("label = %d, want majority 1", p.Label)
	}
}

func TestEmptyModel(t *testing.T) {
	t.Parallel()

	knn, _ := classify.NewKNN(classify.TrainingSet{}, 1)
	vote, _ := classify.NewVote(classify.TrainingSet{}, classify.DefaultVoteWeights())
	search := classify.NewSearchKNN(&mock.Searcher{}, 3)
	for name, c := range map[string]classify.Classifier{"knn": knn, "vote": vote, "search": search} {
		if _, err := c.Classify(context.Background(), classify.Input{Vector: []float64{1}}); !errors.Is(err, classify.ErrEmptyModel) {
			t.Errorf("%s: err = %v, want ErrEmptyModel", name, err)
		}
	}
}

func TestMisalignedTrainingSet(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{Features: [][]float64{{1}}, Labels: []int{0, 1}}
	if _, err := classify.NewKNN(ts, 1); !errors.Is(err, classify.ErrMisaligned) {
		t.Errorf("NewKNN err = %v, want ErrMisaligned", err)
	}
	if _, err := classify.NewVote(ts, classify.DefaultVoteWeights()); !errors.Is(err, classify.ErrMisaligned) {
		t.Errorf("NewVote err = %v, want ErrMisaligned", err)
	}
}

func TestKNN_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{Features: [][]float64{{0}, {10}}, Labels: []int{0, 1}}
	m, _ := classify.NewKNN(ts, 1)
	ts.Features[1][0] = -100
	ts.Labels[1] = 9
	p, _ := m.Classify(context.Background(), classify.Input{Vector: []float64{9}})
	if p.Label != 1 {
		t.Errorf("label = %d, want 1 from the snapshot", p.Label)
	}
}

func TestVote_Plurality(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{
		Features: [][]float64{
			{1, 2, 3, 4},
			{1.1, 2.1, 3.1, 4.1},
			{4, 3, 2, 1},
			{40, 30, 20, 10},
		},
		Labels: []int{0, 0, 1, 1},
	}
	v, err := classify.NewVote(ts, classify.DefaultVoteWeights())
	if err != nil {
		t.Fatalf("NewVote: %v", err)
	}
	p, _ := v.Classify(context.Background(), classify.Input{Vector: []float64{1, 2, 3, 4.2}})
	if p.Label != 0 {
		t.Errorf("label = %d, want 0 (votes %v)", p.Label, p.Votes)
	}
	total := 0
	for _, n := range p.Votes {
		total += n
	}
	if total != 5 {
		t.Errorf("total votes = %d, want 5", total)
	}
}

func TestVote_TieGoesToLowestLabel(t *testing.T) {
	t.Parallel()

	// Euclidean picks label 3; cosine picks label 1. One vote each.
	ts := classify.TrainingSet{
		Features: [][]float64{{100, 0}, {1, 1}},
		Labels:   []int{1, 3},
	}
	v, _ := classify.NewVote(ts, classify.VoteWeights{Euclidean: 1, Cosine: 1})
	p, _ := v.Classify(context.Background(), classify.Input{Vector: []float64{2, 0}})
	if p.Votes[1] != 1 || p.Votes[3] != 1 {
		t.Fatalf("votes = %v, want a 1:1 tie", p.Votes)
	}
	if p.Label != 1 {
		t.Errorf("label = %d, want 1", p.Label)
	}
}

func TestMetrics_DefinedOnDegenerateInput(t *testing.T) {
	t.Parallel()

	zero := []float64{0, 0, 0}
	flat := []float64{2, 2, 2}
	x := []float64{1, 2, 3}
	if got := classify.CosineSimilarity(zero, x); got != 0 {
		t.Errorf("cosine with zero vector = %v, want 0", got)
	}
	if got := classify.PearsonCorrelation(flat, x); got != 0 {
		t.Errorf("pearson with constant vector = %v, want 0", got)
	}
	if got := classify.EuclideanDistance([]float64{math.NaN()}, []float64{1}); got != math.MaxFloat64 {
		t.Errorf("euclidean with NaN = %v, want MaxFloat64", got)
	}
	if got := classify.CosineSimilarity([]float64{math.Inf(1)}, []float64{1}); got != 0 {
		t.Errorf("cosine with Inf = %v, want 0", got)
	}
}

func TestMetrics_PadShorterVector(t *testing.T) {
	t.Parallel()

	if got := classify.EuclideanDistance([]float64{3}, []float64{0, 4}); got != 5 {
		t.Errorf("distance = %v, want 5", got)
	}
	if got := classify.PearsonCorrelation([]float64{1, 2, 3}, []float64{2, 4, 6}); math.Abs(got-1) > 1e-12 {
		t.Errorf("pearson = %v, want 1", got)
	}
	if _, err := classify.Similarity("manhattan", nil, nil); err == nil {
		t.Error("unknown metric must fail")
	}
}

func TestSearchKNN(t *testing.T) {
	t.Parallel()

	s := &mock.Searcher{Neighbors: []classify.Neighbor{
		{Label: 2, Distance: 0.1},
		{Label: 1, Distance: 0.2},
		{Label: 1, Distance: 0.3},
	}}
	c := classify.NewSearchKNN(s, 3)
	p, err := c.Classify(context.Background(), classify.Input{Vector: []float64{1, 2}})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if p.Label != 1 {
		t.Errorf("label = %d, want 1", p.Label)
	}
	if len(s.Calls) != 1 || s.Calls[0].K != 3 {
		t.Errorf("calls = %+v, want one call with k=3", s.Calls)
	}

	s.Err = errors.New("connection reset")
	if _, err := c.Classify(context.Background(), classify.Input{}); err == nil {
		t.Error("searcher error must propagate")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{Features: [][]float64{{1}}, Labels: []int{0}}
	for _, kind := range []classify.Kind{classify.KindThreshold, classify.KindKNN, classify.KindVote} {
		cfg := classify.Config{Kind: kind, Weights: classify.DefaultVoteWeights(), Threshold: classify.DefaultThresholds()}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: Validate: %v", kind, err)
		}
		if _, err := classify.New(cfg, ts); err != nil {
			t.Errorf("%s: New: %v", kind, err)
		}
	}
	if _, err := classify.New(classify.Config{Kind: classify.KindPGVector}, ts); !errors.Is(err, classify.ErrNeedsSearcher) {
		t.Errorf("pgvector: err = %v, want ErrNeedsSearcher", err)
	}
	if err := (classify.Config{Kind: "forest"}).Validate(); err == nil {
		t.Error("unknown kind must fail validation")
	}
	if err := (classify.Config{Kind: classify.KindVote}).Validate(); err == nil {
		t.Error("all-zero vote weights must fail validation")
	}
}

func TestAccuracyAndSeparability(t *testing.T) {
	t.Parallel()

	ts := classify.TrainingSet{
		Features: [][]float64{{0, 1}, {0, 1.2}, {10, 0}, {11, 0}},
		Labels:   []int{0, 0, 1, 1},
	}
	m, _ := classify.NewKNN(ts, 1)
	acc, err := classify.Accuracy(context.Background(), m, ts)
	if err != nil || acc != 1 {
		t.Errorf("Accuracy = %v, %v, want 1", acc, err)
	}

	seps, err := classify.Separability(ts)
	if err != nil {
		t.Fatalf("Separability: %v", err)
	}
	if len(seps) != 3 {
		t.Fatalf("got %d metrics, want 3", len(seps))
	}
	euc := seps[0]
	if euc.Metric != classify.Euclidean || euc.Intra.Pairs != 2 || euc.Inter.Pairs != 4 {
		t.Fatalf("euclidean separation = %+v", euc)
	}
	if euc.Intra.Max >= euc.Inter.Min {
		t.Errorf("intra max %v should be below inter min %v", euc.Intra.Max, euc.Inter.Min)
	}
	if _, err := classify.Separability(classify.TrainingSet{Features: [][]float64{{1}}, Labels: []int{0}}); err == nil {
		t.Error("single exemplar must fail")
	}
}
