// Package health implements the process-wide service health state machine.
//
// A single Monitor instance classifies gateway outcomes into one of four
// phases and drives the full-screen gate that replaces the application view
// while the platform is unreachable or throttling. The Monitor is an
// injectable service object, not ambient global state: construct one per
// session (or per test) and register it as the gateway's health sink.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/telcoflow/console/internal/api"
)

// Phase is the application-wide health phase.
type Phase string

const (
	// PhaseChecking is the initial phase while the startup probe is in
	// flight. It is left exactly once and never re-entered.
	PhaseChecking Phase = "checking"
	// PhaseHealthy means the platform answered the probe and no blocking
	// condition is active.
	PhaseHealthy Phase = "healthy"
	// PhaseRateLimited means the server is alive but throttling. Recovery
	// requires waiting out the server hint and an explicit retry.
	PhaseRateLimited Phase = "rate_limited"
	// PhaseConnectionError means no response is coming back at all.
	PhaseConnectionError Phase = "connection_error"
)

// State is a snapshot of the health state machine.
type State struct {
	Phase Phase
	// RetryAfter is the server-supplied wait, meaningful only while
	// rate limited.
	RetryAfter time.Duration
}

// Prober issues the lightweight health probe. Satisfied by *api.Gateway.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor is the health state machine. It implements api.HealthSink, so all
// transitions flow synchronously from gateway outcomes: no call resolves to
// its caller before the phase has been updated.
type Monitor struct {
	prober Prober
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	started bool
	subs    []func(State)
}

// NewMonitor creates a Monitor in the checking phase.
func NewMonitor(prober Prober, logger *slog.Logger) *Monitor {
	return &Monitor{
		prober: prober,
		logger: logger.With("component", "health"),
		state:  State{Phase: PhaseChecking},
	}
}

// State returns a snapshot of the current health state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a callback invoked synchronously on every transition,
// in the goroutine of the triggering gateway call. Must be called before
// Start.
func (m *Monitor) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Start issues the single startup probe. The resulting transition out of
// checking happens through the sink callbacks before Ping returns; Start is
// a no-op on subsequent calls. The probe error is returned for logging but
// has already been classified.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	return m.prober.Ping(ctx)
}

// Retry re-issues the probe for the manual "try again" action. While
// healthy it is a no-op.
func (m *Monitor) Retry(ctx context.Context) error {
	if m.State().Phase == PhaseHealthy {
		return nil
	}
	return m.prober.Ping(ctx)
}

// ReportFailure implements api.HealthSink. Rate limiting replaces any
// previous hint (last-signal-wins); connectivity loss clears it.
func (m *Monitor) ReportFailure(kind api.FailureKind, retryAfter time.Duration) {
	switch kind {
	case api.FailureRateLimited:
		if retryAfter <= 0 {
			retryAfter = api.DefaultRetryAfter
		}
		m.transition(State{Phase: PhaseRateLimited, RetryAfter: retryAfter})
	case api.FailureConnection:
		m.transition(State{Phase: PhaseConnectionError})
	}
}

// ReportSuccess implements api.HealthSink. The probe always re-establishes
// health; ordinary successes only clear a connection_error phase
// opportunistically, so rate limiting never reverts without a retry.
func (m *Monitor) ReportSuccess(probe bool) {
	m.mu.Lock()
	phase := m.state.Phase
	m.mu.Unlock()

	if probe || phase == PhaseConnectionError {
		m.transition(State{Phase: PhaseHealthy})
	}
}

// transition applies the new state and notifies subscribers outside the
// lock. A repeated rate_limited state still notifies so the countdown
// resets to the fresh hint; identical states otherwise stay silent.
func (m *Monitor) transition(next State) {
	m.mu.Lock()
	prev := m.state
	if prev == next && next.Phase != PhaseRateLimited {
		m.mu.Unlock()
		return
	}
	m.state = next
	subs := make([]func(State), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if prev.Phase != next.Phase {
		m.logger.Info("health phase changed",
			"from", string(prev.Phase),
			"to", string(next.Phase),
			"retry_after", next.RetryAfter,
		)
	}

	for _, fn := range subs {
		fn(next)
	}
}
