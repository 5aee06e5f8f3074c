package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func newTestTracker(slept *[]time.Duration) *QuotaTracker {
	q := NewQuotaTracker()
	q.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return q
}

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"googleapi 429", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"googleapi 500", &googleapi.Error{Code: http.StatusInternalServerError, Message: "backend"}, false},
		{"resource exhausted", errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{"quota message", errors.New("Quota exceeded for metric"), true},
		{"wrapped sentinel", errors.Join(errors.New("answer"), ErrQuota), true},
		{"network", errors.New("connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQuotaError(tt.err); got != tt.want {
				t.Errorf("IsQuotaError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetryRecovers(t *testing.T) {
	var slept []time.Duration
	q := newTestTracker(&slept)

	calls := 0
	got, err := withRetry(context.Background(), q, "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("429 Too Many Requests")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("withRetry() = %q, %v", got, err)
	}
	if want := []time.Duration{2 * time.Second, 5 * time.Second}; len(slept) != 2 || slept[0] != want[0] || slept[1] != want[1] {
		t.Errorf("backoff = %v, want %v", slept, want)
	}
	if q.Level() != QuotaNormal {
		t.Errorf("Level() = %s, want normal", q.Level())
	}
}

func TestWithRetryExhausts(t *testing.T) {
	var slept []time.Duration
	q := newTestTracker(&slept)

	calls := 0
	_, err := withRetry(context.Background(), q, "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("resource_exhausted")
	})
	if !errors.Is(err, ErrQuota) {
		t.Fatalf("withRetry() error = %v, want ErrQuota", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if q.Level() != QuotaExhausted {
		t.Errorf("Level() = %s, want exhausted", q.Level())
	}
	if got := q.LastError(); !strings.HasPrefix(got, "test: ") || !strings.Contains(got, "resource_exhausted") {
		t.Errorf("LastError() = %q", got)
	}
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	var slept []time.Duration
	q := newTestTracker(&slept)
	boom := errors.New("connection refused")

	calls := 0
	_, err := withRetry(context.Background(), q, "test", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) || calls != 1 || len(slept) != 0 {
		t.Errorf("err = %v, calls = %d, slept = %v", err, calls, slept)
	}
	if q.Level() != QuotaNormal {
		t.Errorf("Level() = %s, want normal", q.Level())
	}
}
