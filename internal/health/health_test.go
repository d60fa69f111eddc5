package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/earsense/internal/resilience"
)

func serveReadyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func pass(context.Context) error { return nil }

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("x") }})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	errStore := errors.New("connection refused")
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "store", Check: pass},
				{Name: "sessions", Check: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"store": "ok", "sessions": "ok"},
		},
		{
			name: "required fails",
			checkers: []Checker{
				{Name: "store", Check: func(context.Context) error { return errStore }},
				{Name: "sessions", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"store": "fail: connection refused", "sessions": "ok"},
		},
		{
			name: "optional fails",
			checkers: []Checker{
				{Name: "store", Check: pass},
				{Name: "store_backends", Optional: true, Check: func(context.Context) error { return errStore }},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"store": "ok", "store_backends": "fail: connection refused"},
		},
		{
			name: "required and optional fail",
			checkers: []Checker{
				{Name: "a", Optional: true, Check: func(context.Context) error { return errStore }},
				{Name: "b", Check: func(context.Context) error { return errStore }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := serveReadyz(t, New(tt.checkers...))
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "test", Check: pass}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestStoreChecker(t *testing.T) {
	t.Parallel()
	c := StoreChecker(pinger{err: errors.New("down")})
	if c.Name != "store" || c.Optional {
		t.Errorf("checker = %+v", c)
	}
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected error")
	}
	if err := StoreChecker(pinger{}).Check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCapacityChecker(t *testing.T) {
	t.Parallel()
	active := 2
	c := CapacityChecker(func() int { return active }, 2)
	if err := c.Check(context.Background()); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("err = %v, want ErrAtCapacity", err)
	}
	active = 1
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	unlimited := CapacityChecker(func() int { return 1000 }, 0)
	if err := unlimited.Check(context.Background()); err != nil {
		t.Errorf("unlimited: unexpected error: %v", err)
	}
}

func TestBreakerChecker(t *testing.T) {
	t.Parallel()
	status := []resilience.EntryStatus{
		{Name: "postgres", State: resilience.StateOpen},
		{Name: "file", State: resilience.StateClosed},
	}
	c := BreakerChecker(func() []resilience.EntryStatus { return status })
	if !c.Optional {
		t.Error("breaker checker must be optional")
	}
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "postgres open") || strings.Contains(err.Error(), "file") {
		t.Errorf("err = %v, want only postgres listed", err)
	}
}
