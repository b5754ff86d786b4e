// Package timer runs per-session countdowns that tick once per second.
package timer

import (
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// Countdown owns one running timer per session id.
type Countdown struct {
	newTicker TickerFactory
	interval  time.Duration

	mu          sync.Mutex
	timers      map[string]*countdown
	generations map[string]uint64
}

type countdown struct {
	gen       uint64
	remaining int
	paused    bool
	done      chan struct{}
}

// New returns a countdown registry driven by wall-clock seconds.
func New() *Countdown {
	return NewWithTicker(newRealTicker)
}

// NewWithTicker lets tests drive ticks manually.
func NewWithTicker(factory TickerFactory) *Countdown {
	return &Countdown{
		newTicker:   factory,
		interval:    time.Second,
		timers:      make(map[string]*countdown),
		generations: make(map[string]uint64),
	}
}

// Start replaces any timer for id with a new one of the given length.
// onTick receives the remaining seconds after every decrement; onEnd fires
// once when the count reaches zero. The returned generation identifies this
// run; callbacks of a replaced run can be told apart with Generation.
func (c *Countdown) Start(id string, seconds int, onTick func(remaining int), onEnd func()) uint64 {
	c.mu.Lock()
	c.stopLocked(id)
	c.generations[id]++
	gen := c.generations[id]
	if seconds <= 0 {
		c.mu.Unlock()
		go func() {
			if onTick != nil {
				onTick(0)
			}
			if onEnd != nil {
				onEnd()
			}
		}()
		return gen
	}
	t := &countdown{gen: gen, remaining: seconds, done: make(chan struct{})}
	c.timers[id] = t
	ticker := c.newTicker(c.interval)
	c.mu.Unlock()

	go c.run(id, t, ticker, onTick, onEnd)
	return gen
}

func (c *Countdown) run(id string, t *countdown, ticker Ticker, onTick func(int), onEnd func()) {
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C():
			c.mu.Lock()
			if c.timers[id] != t {
				c.mu.Unlock()
				return
			}
			if t.paused {
				c.mu.Unlock()
				continue
			}
			t.remaining--
			remaining := t.remaining
			if remaining <= 0 {
				remaining = 0
				delete(c.timers, id)
			}
			c.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
			if remaining == 0 {
				if onEnd != nil {
					onEnd()
				}
				return
			}
		}
	}
}

// Pause halts decrementing without dropping the timer. No-op when absent.
func (c *Countdown) Pause(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.paused = true
	}
}

// Resume continues a paused timer. No-op when absent.
func (c *Countdown) Resume(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.paused = false
	}
}

// Stop cancels the timer for id. It does not wait for an in-flight callback.
func (c *Countdown) Stop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(id)
}

func (c *Countdown) stopLocked(id string) {
	if t, ok := c.timers[id]; ok {
		delete(c.timers, id)
		close(t.done)
	}
}

// IsRunning reports whether a timer is registered for id, paused or not.
func (c *Countdown) IsRunning(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[id]
	return ok
}

// Remaining returns the seconds left on the timer for id.
func (c *Countdown) Remaining(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[id]
	if !ok {
		return 0, false
	}
	return t.remaining, true
}

// Generation returns the id of the most recent Start for id.
func (c *Countdown) Generation(id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[id]
}

// Running counts registered timers.
func (c *Countdown) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// StopAll cancels every timer; used on shutdown.
func (c *Countdown) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.timers {
		c.stopLocked(id)
	}
}
