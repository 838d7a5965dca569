// Package countdown drives the per-second clock of a time-limited attempt.
package countdown

import (
	"sync"
	"time"
)

// Target is the attempt state a Controller drives.
type Target interface {
	// Tick consumes one period of time. It reports the remaining seconds,
	// never below zero, and whether the attempt is still running.
	Tick() (remaining int, running bool)
}

type Option func(*Controller)

// WithPeriod sets the tick interval. Defaults to one second.
func WithPeriod(d time.Duration) Option { return func(c *Controller) { c.period = d } }

// WithTickHook is called after every tick that left the attempt running.
func WithTickHook(fn func(remaining int)) Option { return func(c *Controller) { c.onTick = fn } }

// Controller ticks a Target until it stops running, runs out of time, or the
// controller is stopped. The expiry callback fires at most once.
type Controller struct {
	target   Target
	period   time.Duration
	onTick   func(remaining int)
	onExpire func()

	once    sync.Once
	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func New(target Target, onExpire func(), opts ...Option) *Controller {
	c := &Controller{
		target:   target,
		period:   time.Second,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start launches the ticking goroutine. Calling it again, or after Stop, does nothing.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	go c.run()
}

// Stop halts ticking. It does not wait for an expiry callback already running.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
	if !c.started {
		close(c.done)
	}
}

// Done is closed once the ticking goroutine has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Controller) run() {
	defer close(c.done)
	t := time.NewTicker(c.period)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			if !c.step() {
				return
			}
		}
	}
}

// step performs one tick and reports whether ticking should continue.
func (c *Controller) step() bool {
	if c.Stopped() {
		return false
	}
	remaining, running := c.target.Tick()
	if !running {
		return false
	}
	if c.onTick != nil {
		c.onTick(remaining)
	}
	if remaining > 0 {
		return true
	}
	c.once.Do(func() {
		if c.onExpire != nil {
			c.onExpire()
		}
	})
	return false
}
