package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/telcoflow/console/internal/api"
)

// fastEngine returns an engine with millisecond intervals and polling
// fallback pushed out of reach.
func fastEngine() *ReconnectEngine {
	e := NewReconnectEngine(slog.Default())
	e.SetIntervals(time.Millisecond, 5*time.Millisecond)
	e.SetPollingFallbackConfig(time.Hour, time.Hour)
	return e
}

func TestActionFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureAction
	}{
		{"network error", errors.New("dial tcp: refused"), RetryTransient},
		{"connection error", &api.ConnectionError{Op: "dial", Err: errors.New("refused")}, RetryTransient},
		{"unauthorized", api.ErrUnauthorized, RetryAuth},
		{"rate limit", api.ErrRateLimit, RespectServer},
		{"forbidden", api.ErrForbidden, PermanentFailure},
		{"not found", api.ErrNotFound, PermanentFailure},
		{"server error", api.ErrServer, RetryTransient},
	}
	for _, tc := range cases {
		if got := actionFor(tc.err); got != tc.want {
			t.Errorf("%s: actionFor = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestReconnectEngine_PermanentFailureStops(t *testing.T) {
	e := fastEngine()

	var attempts atomic.Int32
	connect := func(ctx context.Context) error {
		attempts.Add(1)
		return api.ErrForbidden
	}

	err := e.Run(context.Background(), connect, nil)
	if !errors.Is(err, api.ErrForbidden) {
		t.Errorf("Run = %v, want ErrForbidden", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestReconnectEngine_AuthFailureInvokesCallback(t *testing.T) {
	e := fastEngine()

	var authCalls atomic.Int32
	e.SetOnAuthFailure(func() { authCalls.Add(1) })

	connect := func(ctx context.Context) error {
		return api.ErrUnauthorized
	}

	err := e.Run(context.Background(), connect, nil)
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Errorf("Run = %v, want ErrUnauthorized", err)
	}
	if got := authCalls.Load(); got != 1 {
		t.Errorf("auth callback calls = %d, want 1", got)
	}
}

func TestReconnectEngine_TransientErrorsRetry(t *testing.T) {
	e := fastEngine()

	var attempts atomic.Int32
	connect := func(ctx context.Context) error {
		if attempts.Add(1) < 4 {
			return &api.ConnectionError{Op: "dial", Err: errors.New("refused")}
		}
		return api.ErrForbidden
	}

	err := e.Run(context.Background(), connect, nil)
	if !errors.Is(err, api.ErrForbidden) {
		t.Fatalf("Run = %v, want ErrForbidden", err)
	}
	if got := attempts.Load(); got != 4 {
		t.Errorf("attempts = %d, want 4 (3 transient retries then stop)", got)
	}
}

func TestReconnectEngine_RateLimitRespectsRetryAfter(t *testing.T) {
	e := fastEngine()

	const hint = 30 * time.Millisecond
	var attempts atomic.Int32
	var second time.Time
	first := time.Now()
	connect := func(ctx context.Context) error {
		switch attempts.Add(1) {
		case 1:
			first = time.Now()
			return &api.APIError{StatusCode: 429, Message: "throttled", RetryAfter: hint}
		default:
			second = time.Now()
			return api.ErrForbidden
		}
	}

	if err := e.Run(context.Background(), connect, nil); !errors.Is(err, api.ErrForbidden) {
		t.Fatalf("Run = %v, want ErrForbidden", err)
	}
	if elapsed := second.Sub(first); elapsed < hint {
		t.Errorf("second attempt after %v, want at least %v", elapsed, hint)
	}
}

func TestReconnectEngine_PollingFallback(t *testing.T) {
	e := fastEngine()
	e.SetPollingFallbackConfig(0, time.Millisecond)

	var attempts, polls atomic.Int32
	connect := func(ctx context.Context) error {
		switch attempts.Add(1) {
		case 1:
			return &api.ConnectionError{Op: "dial", Err: errors.New("refused")}
		case 2:
			return nil // channel restored from fallback
		default:
			return api.ErrForbidden
		}
	}
	poll := func(ctx context.Context) error {
		polls.Add(1)
		return nil
	}

	if err := e.Run(context.Background(), connect, poll); !errors.Is(err, api.ErrForbidden) {
		t.Fatalf("Run = %v, want ErrForbidden", err)
	}
	if polls.Load() < 1 {
		t.Error("poll fallback never invoked")
	}
}

func TestReconnectEngine_ContextCancelStops(t *testing.T) {
	e := fastEngine()

	ctx, cancel := context.WithCancel(context.Background())
	connect := func(ctx context.Context) error {
		cancel()
		return &api.ConnectionError{Op: "dial", Err: errors.New("refused")}
	}

	if err := e.Run(ctx, connect, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}
