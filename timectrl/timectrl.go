// Package timectrl drives periodic re-optimization. A Controller advances
// a logical clock by a fixed tick and invokes listeners on every tick,
// either paced by the wall clock or as fast as the listeners return.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the read side of a Controller.
type Clock interface {
	Now() time.Time
}

// Mode describes how the Controller advances time.
type Mode int

const (
	// RealTime waits one Tick of wall-clock time between ticks.
	RealTime Mode = iota
	// Accelerated advances immediately after listeners return.
	Accelerated
)

// Listener is invoked once per tick with the tick's logical time.
type Listener func(ctx context.Context, now time.Time)

// Controller is safe for concurrent Now calls while running.
type Controller struct {
	mu        sync.RWMutex
	start     time.Time
	tick      time.Duration
	mode      Mode
	current   time.Time
	ticks     int
	listeners []Listener
}

// NewController constructs a controller starting at start.
func NewController(start time.Time, tick time.Duration, mode Mode) *Controller {
	return &Controller{
		start:   start,
		tick:    tick,
		mode:    mode,
		current: start,
	}
}

// Now returns the current logical time.
func (c *Controller) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Ticks returns the number of ticks completed so far.
func (c *Controller) Ticks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks
}

// SetTime overrides the current logical time.
func (c *Controller) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// AddListener registers fn. Listeners run sequentially in registration
// order; register them before Run.
func (c *Controller) AddListener(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Run fires the listeners immediately and then once per tick until n ticks
// have fired or ctx is done. n <= 0 runs until ctx is done. It returns
// ctx.Err() on cancellation and nil after n ticks.
func (c *Controller) Run(ctx context.Context, n int) error {
	c.mu.Lock()
	c.current = c.start
	c.ticks = 0
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	var ticker *time.Ticker
	if c.mode == RealTime {
		ticker = time.NewTicker(c.tick)
		defer ticker.Stop()
	}

	for i := 0; n <= 0 || i < n; i++ {
		if i > 0 {
			if ticker != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
			c.mu.Lock()
			c.current = c.current.Add(c.tick)
			c.mu.Unlock()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		now := c.Now()
		for _, fn := range listeners {
			fn(ctx, now)
		}

		c.mu.Lock()
		c.ticks++
		c.mu.Unlock()
	}
	return nil
}
