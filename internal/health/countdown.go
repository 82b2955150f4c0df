package health

import (
	"sync"
	"time"

	"github.com/telcoflow/console/internal/api"
)

// DefaultTickInterval is the countdown tick period.
const DefaultTickInterval = time.Second

// Countdown converts a server-supplied wait into a monotonically decreasing
// display value and a single edge-triggered "can retry" transition. A
// restart invalidates the previous run: a generation counter is checked
// after every suspension point so a stale ticker goroutine can never fire
// into a newer run.
type Countdown struct {
	clock    api.Clock
	interval time.Duration

	mu         sync.Mutex
	remaining  int
	canRetry   bool
	generation int
	quit       chan struct{}
	onTick     func(remaining int)
	onReady    func()
}

// NewCountdown creates a stopped Countdown ticking at one-second intervals.
func NewCountdown() *Countdown {
	return &Countdown{
		clock:    api.RealClock{},
		interval: DefaultTickInterval,
	}
}

// SetClock sets a custom clock implementation for testing.
func (c *Countdown) SetClock(clk api.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clk
}

// SetInterval overrides the tick interval. Useful for testing with fast
// intervals.
func (c *Countdown) SetInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = d
}

// SetOnTick sets the callback invoked with the remaining seconds after
// every tick, including the final tick at 0.
func (c *Countdown) SetOnTick(fn func(remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// SetOnReady sets the callback invoked exactly once per run when the
// countdown reaches 0.
func (c *Countdown) SetOnReady(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReady = fn
}

// Remaining returns the current display value in seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// CanRetry reports whether the current run has reached 0.
func (c *Countdown) CanRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canRetry
}

// Start begins a new run from the given number of seconds, cancelling any
// previous run and resetting the retry edge. A non-positive value completes
// immediately.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	if c.quit != nil {
		close(c.quit)
	}
	c.quit = make(chan struct{})
	quit := c.quit
	c.canRetry = false

	if seconds <= 0 {
		c.remaining = 0
		c.canRetry = true
		tick, ready := c.onTick, c.onReady
		c.mu.Unlock()
		if tick != nil {
			tick(0)
		}
		if ready != nil {
			ready()
		}
		return
	}

	c.remaining = seconds
	clk := c.clock
	interval := c.interval
	c.mu.Unlock()

	go c.run(gen, quit, clk, interval)
}

// Stop cancels the current run without firing the retry edge.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
}

// run decrements once per interval until it reaches 0 or is superseded.
func (c *Countdown) run(gen int, quit chan struct{}, clk api.Clock, interval time.Duration) {
	for {
		select {
		case <-quit:
			return
		case <-clk.After(interval):
		}

		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.remaining--
		if c.remaining <= 0 {
			c.remaining = 0
			c.canRetry = true
			tick, ready := c.onTick, c.onReady
			c.mu.Unlock()
			if tick != nil {
				tick(0)
			}
			if ready != nil {
				ready()
			}
			return
		}
		remaining := c.remaining
		tick := c.onTick
		c.mu.Unlock()

		if tick != nil {
			tick(remaining)
		}
	}
}
