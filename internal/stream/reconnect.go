package stream

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/telcoflow/console/internal/api"
)

// FailureAction indicates how the reconnect engine handles a failed connect.
type FailureAction int

const (
	// RetryTransient means exponential backoff (network errors, 5xx).
	RetryTransient FailureAction = iota
	// RetryAuth means invoke the auth-failure callback and stop (401).
	RetryAuth
	// RespectServer means wait out the server-provided Retry-After (429).
	RespectServer
	// PermanentFailure means stop reconnection entirely (403, 404).
	PermanentFailure
)

// actionFor maps a connect error to its reconnection action.
func actionFor(err error) FailureAction {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return RetryTransient
	}
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return RetryAuth
	case errors.Is(err, api.ErrRateLimit):
		return RespectServer
	case errors.Is(err, api.ErrForbidden), errors.Is(err, api.ErrNotFound):
		return PermanentFailure
	default:
		return RetryTransient
	}
}

// ConnectFunc establishes the streaming channel. It blocks while the channel
// is up and returns when it drops: nil for an orderly drop, an error for a
// failed dial.
type ConnectFunc func(ctx context.Context) error

// PollFunc fetches a recent-changes snapshot during polling fallback.
type PollFunc func(ctx context.Context) error

// ReconnectEngine keeps the streaming channel alive: reconnect with backoff
// and jitter on transient failures, and a polling fallback once the channel
// has been down long enough that a snapshot is better than nothing.
type ReconnectEngine struct {
	baseInterval    time.Duration
	multiplier      float64
	maxInterval     time.Duration
	jitterFraction  float64
	pollingFallback time.Duration
	pollInterval    time.Duration

	onAuthFailure func()
	logger        *slog.Logger
	clock         api.Clock

	mu              sync.Mutex
	currentInterval time.Duration
	failingSince    time.Time
}

// NewReconnectEngine creates a ReconnectEngine with default settings.
func NewReconnectEngine(logger *slog.Logger) *ReconnectEngine {
	return &ReconnectEngine{
		baseInterval:    time.Second,
		multiplier:      2.0,
		maxInterval:     60 * time.Second,
		jitterFraction:  0.25,
		pollingFallback: 5 * time.Minute,
		pollInterval:    60 * time.Second,
		logger:          logger.With("component", "stream"),
		clock:           api.RealClock{},
		currentInterval: time.Second,
	}
}

// SetOnAuthFailure sets the callback invoked on authentication failures.
func (r *ReconnectEngine) SetOnAuthFailure(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAuthFailure = fn
}

// SetClock sets a custom clock implementation for testing.
func (r *ReconnectEngine) SetClock(c api.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = c
}

// SetIntervals configures the base and max backoff intervals and resets the
// current interval to the new base. Useful for testing with fast intervals.
func (r *ReconnectEngine) SetIntervals(base, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseInterval = base
	r.maxInterval = max
	r.currentInterval = base
}

// SetPollingFallbackConfig configures when to enter polling mode and how
// often to poll.
func (r *ReconnectEngine) SetPollingFallbackConfig(fallbackAfter, pollInterval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollingFallback = fallbackAfter
	r.pollInterval = pollInterval
}

// jitter spreads a delay by plus or minus jitterFraction.
func (r *ReconnectEngine) jitter(d time.Duration) time.Duration {
	jit := float64(d) * r.jitterFraction
	delta := (rand.Float64()*2 - 1) * jit
	return time.Duration(float64(d) + delta)
}

// Run drives connection attempts until the context is cancelled or a
// permanent failure occurs. A successful connect resets the backoff; a drop
// of an established channel reconnects immediately.
func (r *ReconnectEngine) Run(ctx context.Context, connectFn ConnectFunc, pollFn PollFunc) error {
	r.resetBackoff()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := connectFn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errClosed) {
			return err
		}
		if err == nil {
			r.resetBackoff()
			r.logger.Info("streaming channel dropped, reconnecting")
			continue
		}

		if err := r.handleConnectError(ctx, err, connectFn, pollFn); err != nil {
			return err
		}
	}
}

func (r *ReconnectEngine) resetBackoff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentInterval = r.baseInterval
	r.failingSince = time.Time{}
}

// handleConnectError returns nil to continue the reconnect loop, or an error
// to stop it.
func (r *ReconnectEngine) handleConnectError(ctx context.Context, err error, connectFn ConnectFunc, pollFn PollFunc) error {
	switch actionFor(err) {
	case PermanentFailure:
		r.logger.Error("permanent failure, stopping reconnection", "error", err)
		return err

	case RetryAuth:
		r.mu.Lock()
		fn := r.onAuthFailure
		r.mu.Unlock()
		if fn != nil {
			fn()
		}
		r.logger.Error("authentication failure", "error", err)
		return err

	case RespectServer:
		return r.handleRateLimit(ctx, err)

	default:
		return r.handleTransientError(ctx, err, connectFn, pollFn)
	}
}

// handleRateLimit waits out the server-specified delay.
func (r *ReconnectEngine) handleRateLimit(ctx context.Context, err error) error {
	var apiErr *api.APIError
	r.mu.Lock()
	delay := r.currentInterval
	r.mu.Unlock()
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		delay = apiErr.RetryAfter
	}
	r.logger.Warn("rate limited, respecting server retry-after", "delay", delay)
	return r.wait(ctx, delay)
}

// handleTransientError applies exponential backoff or enters polling
// fallback once the channel has been failing long enough.
func (r *ReconnectEngine) handleTransientError(ctx context.Context, err error, connectFn ConnectFunc, pollFn PollFunc) error {
	r.mu.Lock()
	if r.failingSince.IsZero() {
		r.failingSince = r.clock.Now()
	}
	failingSince := r.failingSince
	currentInterval := r.currentInterval
	pollingFallback := r.pollingFallback
	clk := r.clock
	r.mu.Unlock()

	if clk.Now().Sub(failingSince) >= pollingFallback {
		if err := r.runPollingFallback(ctx, connectFn, pollFn); err != nil {
			return err
		}
		r.resetBackoff()
		return nil
	}

	delay := r.jitter(currentInterval)
	r.logger.Warn("transient error, backing off", "error", err, "delay", delay)

	if err := r.wait(ctx, delay); err != nil {
		return err
	}

	r.incrementInterval()
	return nil
}

func (r *ReconnectEngine) incrementInterval() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentInterval = time.Duration(
		math.Min(
			float64(r.currentInterval)*r.multiplier,
			float64(r.maxInterval),
		),
	)
}

func (r *ReconnectEngine) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	clk := r.clock
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}

// runPollingFallback periodically fetches a snapshot and re-attempts the
// channel, returning when the channel comes back or fails permanently.
func (r *ReconnectEngine) runPollingFallback(ctx context.Context, connectFn ConnectFunc, pollFn PollFunc) error {
	r.logger.Warn("streaming channel unavailable, falling back to polling")

	r.mu.Lock()
	pollInterval := r.pollInterval
	clk := r.clock
	r.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if pollFn != nil {
			if err := pollFn(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("poll failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(pollInterval):
		}

		connErr := connectFn(ctx)
		if connErr == nil {
			r.logger.Info("streaming channel restored from polling fallback")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if action := actionFor(connErr); action == PermanentFailure || action == RetryAuth {
			return connErr
		}

		r.logger.Debug("channel reconnect attempt failed during polling", "error", connErr)
	}
}
