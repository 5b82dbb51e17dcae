/*
Package coalescer provides a debounced write scheduler.

PURPOSE:
  Persistence is decoupled from in-memory mutation. Every logical write has
  a key; scheduling a key that is already pending replaces its action and
  restarts its timer, so a burst of edits to one record produces exactly
  one write carrying the final state. Different keys fire independently.

SEMANTICS:
  - Schedule(key, action, delay): replace any pending action for key
  - Cancel(key):                  drop a pending action without running it
  - FlushAll(ctx):                run every pending action now, in key order
  - Wait():                       block until actions already firing return

  An action that has started firing is never canceled and never retried.
  Failures go to the error handler (logged by default) and, for FlushAll,
  are also returned joined.

CLOCK:
  Timers come from a Clock. RealClock uses time.AfterFunc; ManualClock fires
  timers only when advanced, for tests.

SEE ALSO:
  - tracker/writes.go: Keys and snapshot actions for every write
*/
package coalescer

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Action is one coalesced write.
type Action func(ctx context.Context) error

// DefaultDelay is the debounce window used when none is configured.
const DefaultDelay = 500 * time.Millisecond

// =============================================================================
// CLOCK
// =============================================================================

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock schedules on the runtime timer.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// =============================================================================
// COALESCER
// =============================================================================

type entry struct {
	action Action
	timer  Timer
	gen    uint64
}

// Coalescer debounces keyed writes.
type Coalescer struct {
	mu       sync.Mutex
	pending  map[string]*entry
	gen      uint64
	inflight int
	idle     *sync.Cond // signaled on c.mu when inflight drops to zero

	clock   Clock
	delay   time.Duration
	logger  logrus.FieldLogger
	onError func(key string, err error)
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithClock replaces the real clock.
func WithClock(clock Clock) Option {
	return func(c *Coalescer) { c.clock = clock }
}

// WithLogger sets the logger used for failed writes.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Coalescer) { c.logger = logger }
}

// WithErrorHandler is called for every failed timer-fired action.
func WithErrorHandler(fn func(key string, err error)) Option {
	return func(c *Coalescer) { c.onError = fn }
}

// New creates a coalescer with the given default delay.
func New(delay time.Duration, opts ...Option) *Coalescer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	c := &Coalescer{
		pending: make(map[string]*entry),
		clock:   RealClock{},
		delay:   delay,
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.logger = l
	}
	if c.onError == nil {
		c.onError = func(key string, err error) {
			c.logger.WithField("key", key).WithError(err).Error("coalesced write failed")
		}
	}
	return c
}

// Delay is the default debounce window.
func (c *Coalescer) Delay() time.Duration { return c.delay }

// Schedule runs action after delay unless key is scheduled again first.
// A non-positive delay uses the default.
func (c *Coalescer) Schedule(key string, action Action, delay time.Duration) {
	if delay <= 0 {
		delay = c.delay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.pending[key]; ok {
		e.timer.Stop()
	}
	c.gen++
	gen := c.gen
	e := &entry{action: action, gen: gen}
	c.pending[key] = e
	e.timer = c.clock.AfterFunc(delay, func() { c.fire(key, gen) })
}

// fire runs the action for key if it is still the latest one scheduled.
func (c *Coalescer) fire(key string, gen uint64) {
	c.mu.Lock()
	e, ok := c.pending[key]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.inflight++
	c.mu.Unlock()

	defer c.done()
	if err := e.action(context.Background()); err != nil {
		c.onError(key, err)
	}
}

func (c *Coalescer) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
}

// Cancel drops the pending action for key. Returns false if none was pending.
func (c *Coalescer) Cancel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(c.pending, key)
	return true
}

// FlushAll runs every pending action immediately in key order, then waits
// for actions already in flight. Errors are joined.
func (c *Coalescer) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]*entry, len(keys))
	for i, k := range keys {
		e := c.pending[k]
		e.timer.Stop()
		entries[i] = e
		delete(c.pending, k)
	}
	c.mu.Unlock()

	var errs []error
	for i, e := range entries {
		if err := e.action(ctx); err != nil {
			c.logger.WithField("key", keys[i]).WithError(err).Error("flushed write failed")
			errs = append(errs, err)
		}
	}
	c.Wait()
	return errors.Join(errs...)
}

// Wait blocks until every action that has started firing returns.
func (c *Coalescer) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

// Pending returns the keys waiting for their timer, sorted.
func (c *Coalescer) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
