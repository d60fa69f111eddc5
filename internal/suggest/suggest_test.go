package suggest_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/earsense/internal/suggest"
)

var detectors = []string{"activity", "gesture", "step", "breathing"}

func TestClosest(t *testing.T) {
	t.Parallel()
	m := suggest.New()

	tests := []struct {
		name   string
		input  string
		names  []string
		want   string
		wantOK bool
	}{
		{name: "typo", input: "gestur", names: detectors, want: "gesture", wantOK: true},
		{name: "exact ignores case", input: "still", names: []string{"Walking", "Still"}, want: "Still", wantOK: true},
		{name: "multi word", input: "left tempel", names: []string{"jaw", "left temple", "right temple"}, want: "left temple", wantOK: true},
		{name: "short typo", input: "jw", names: []string{"jaw", "left temple", "right temple"}, want: "jaw", wantOK: true},
		{name: "short unrelated", input: "nu", names: []string{"jaw", "left temple", "right temple"}},
		{name: "unrelated", input: "xyz", names: []string{"jaw", "left temple"}},
		{name: "empty input", input: "  ", names: detectors},
		{name: "no names", input: "step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, score, ok := m.Closest(tt.input, tt.names)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Closest(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
			if ok && (score <= 0 || score > 1) {
				t.Errorf("score = %v, want in (0, 1]", score)
			}
		})
	}
}

func TestClosest_Thresholds(t *testing.T) {
	t.Parallel()
	m := suggest.New(suggest.WithPhoneticThreshold(0.99), suggest.WithFuzzyThreshold(0.99))
	if got, _, ok := m.Closest("gestur", detectors); ok {
		t.Errorf("strict matcher suggested %q", got)
	}
	if got, _, ok := m.Closest("jw", []string{"jaw"}); !ok || got != "jaw" {
		t.Errorf("strict matcher missed a one-edit short name: %q, %v", got, ok)
	}
	if got, score, ok := m.Closest("GESTURE", detectors); !ok || got != "gesture" || score != 1 {
		t.Errorf("exact match = %q, %v, %v", got, score, ok)
	}
}

func TestUnknown(t *testing.T) {
	t.Parallel()
	m := suggest.New()

	if err := m.Unknown("detector", "gestur", detectors); !strings.Contains(err.Error(), `did you mean "gesture"`) {
		t.Errorf("error = %v", err)
	}
	if err := m.Unknown("label", "xyz", []string{"jaw"}); !strings.Contains(err.Error(), "known: jaw") {
		t.Errorf("error = %v", err)
	}
	if err := m.Unknown("dataset", "xyz", nil); err.Error() != `unknown dataset "xyz"` {
		t.Errorf("error = %v", err)
	}
}
