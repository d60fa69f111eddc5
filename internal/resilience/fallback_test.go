package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/earsense/pkg/trainstore"
)

func newGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	t.Parallel()
	fg := newGroup()

	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "primary" {
		t.Fatalf("called = %v, want [primary]", called)
	}
	if fg.Len() != 2 {
		t.Errorf("Len = %d, want 2", fg.Len())
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	t.Parallel()
	fg := newGroup()

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return "served by " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "served by secondary" {
		t.Fatalf("got %q", got)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()
	fg := newGroup()

	err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, should wrap the last backend error", err)
	}
}

func TestFallbackGroup_CallerErrorStopsFailover(t *testing.T) {
	t.Parallel()
	fg := newGroup()

	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return fmt.Errorf("bad: %w", trainstore.ErrInvalidKey)
	})
	if !errors.Is(err, trainstore.ErrInvalidKey) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want the invalid key error unwrapped by the group", err)
	}
	if len(called) != 1 {
		t.Errorf("called = %v, want only the primary", called)
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()
	fg := newGroup()

	// Trip the primary.
	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	status := fg.Status()
	if status[0].Name != "primary" || status[0].State != StateOpen {
		t.Fatalf("primary status = %+v, want open", status[0])
	}
	if status[1].State != StateClosed {
		t.Fatalf("secondary status = %+v, want closed", status[1])
	}

	var called []string
	if err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "secondary" {
		t.Errorf("called = %v, want [secondary]", called)
	}
}
