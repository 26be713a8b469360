// Package loader owns the view state of the content shell: which of the
// loading, offline, error or ready views is authoritative, and the single
// asynchronous resolution that can change it.
//
// All events pass through one Machine under the controller's lock, so the
// state is only ever mutated by one goroutine at a time. Each load is tagged
// with a generation; results from superseded loads are dropped instead of
// overwriting newer state. In-flight requests are never cancelled, only
// bounded by Options.Timeout.
package loader

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonathan/netmirror/internal/connectivity"
	"github.com/jonathan/netmirror/internal/resolver"
)

// DefaultTimeout bounds a single resolution when Options.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// subscriberBuffer is the per-subscriber backlog of state changes.
const subscriberBuffer = 32

// Resolver fetches the raw resolver payload.
type Resolver interface {
	Resolve(ctx context.Context) (*resolver.Response, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (*resolver.Response, error)

// Resolve calls f(ctx).
func (f ResolverFunc) Resolve(ctx context.Context) (*resolver.Response, error) {
	return f(ctx)
}

// Options configures a Controller.
type Options struct {
	// WithConnectivityCheck enables the offline view.
	WithConnectivityCheck bool
	// Timeout bounds each resolution. Zero means DefaultTimeout.
	Timeout time.Duration
	// Recorder receives one Attempt per settled load. Optional.
	Recorder Recorder
	Verbose  bool
}

// Controller drives the view state.
type Controller struct {
	resolver Resolver
	opts     Options

	mu      sync.Mutex
	machine *Machine
	subs    map[int]chan State
	settled map[int]chan Attempt
	nextSub int
	started map[uint64]time.Time

	inflight  sync.WaitGroup
	discarded atomic.Int64
}

// NewController creates a controller in the Loading state. No load is
// started until InitiateLoad is called.
func NewController(r Resolver, opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Controller{
		resolver: r,
		opts:     opts,
		machine:  NewMachine(opts.WithConnectivityCheck),
		subs:     make(map[int]chan State),
		settled:  make(map[int]chan Attempt),
		started:  make(map[uint64]time.Time),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Generation returns the generation of the most recent load.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Generation()
}

// Retained returns a ready state hidden by the offline view, if any.
func (c *Controller) Retained() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Retained()
}

// Discarded returns how many resolver results were dropped as stale.
func (c *Controller) Discarded() int64 {
	return c.discarded.Load()
}

// InitiateLoad enters Loading and starts a resolution in the background. It
// returns the generation assigned to this load. Earlier loads keep running,
// but their results can no longer change the state.
func (c *Controller) InitiateLoad(ctx context.Context) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

// Retry starts a new load. The retry affordance is only offered from the
// offline and error views (State.CanRetry), but the controller accepts it
// in any state.
func (c *Controller) Retry(ctx context.Context) uint64 {
	return c.InitiateLoad(ctx)
}

// RetryIfOffered starts a new load only if the current state offers retry.
// The check and the transition to Loading happen under one lock, so of
// several concurrent callers exactly one wins.
func (c *Controller) RetryIfOffered(ctx context.Context) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.machine.State().CanRetry() {
		return 0, false
	}
	return c.startLocked(ctx), true
}

func (c *Controller) startLocked(ctx context.Context) uint64 {
	gen := c.machine.Generation() + 1
	c.started[gen] = time.Now()
	c.applyLocked(LoadStarted{Generation: gen})
	c.inflight.Add(1)

	if c.opts.Verbose {
		log.Printf("[loader] load #%d started", gen)
	}

	go func() {
		defer c.inflight.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
		defer cancel()

		resp, err := c.resolver.Resolve(rctx)
		if err != nil {
			c.OnResolverFailure(gen, err)
			return
		}
		c.OnResolverSuccess(gen, resp)
	}()

	return gen
}

// OnResolverSuccess handles a payload for load gen. A missing, empty or
// undecodable token_hash is a failure, not a panic.
func (c *Controller) OnResolverSuccess(gen uint64, resp *resolver.Response) State {
	dest, err := resolver.Decode(resp)
	if err != nil {
		return c.OnResolverFailure(gen, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	state, outcome := c.applyLocked(Resolved{Generation: gen, Destination: dest})
	c.settleLocked(gen, outcome, Attempt{Outcome: AttemptReady, Destination: dest})
	return state
}

// OnResolverFailure handles a failed load gen. The cause is logged and
// recorded; the view only ever shows the generic message.
func (c *Controller) OnResolverFailure(gen uint64, reason error) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, outcome := c.applyLocked(Failed{Generation: gen, Err: reason})
	c.settleLocked(gen, outcome, Attempt{
		Outcome: AttemptError,
		Cause:   resolver.KindOf(reason),
		Err:     reason,
	})
	return state
}

// OnConnectivityChange applies a connectivity reading. Disconnected forces
// the offline view; Connected never starts a load by itself.
func (c *Controller) OnConnectivityChange(status connectivity.Status) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, _ := c.applyLocked(ConnectivityChanged{Status: status})
	return state
}

// Subscribe returns a channel that receives every state change, starting
// with the current state, and a function that unsubscribes. A subscriber
// that falls more than subscriberBuffer changes behind loses the oldest.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan State, subscriberBuffer)
	c.subs[id] = ch
	ch <- c.machine.State()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// SubscribeSettled returns a channel that receives one Attempt each time a
// load's result is handled, whether it was shown, masked by the offline
// view or dropped as stale, and a function that unsubscribes.
func (c *Controller) SubscribeSettled() (<-chan Attempt, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Attempt, subscriberBuffer)
	c.settled[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.settled, id)
			close(ch)
		})
	}
}

// Wait blocks until every started resolution has delivered its result.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) applyLocked(ev Event) (State, Outcome) {
	prev := c.machine.State()
	next, outcome := c.machine.Apply(ev)
	if next != prev {
		if c.opts.Verbose {
			log.Printf("[loader] %s -> %s", prev, next)
		}
		c.broadcastLocked(next)
	}
	return next, outcome
}

func (c *Controller) broadcastLocked(s State) {
	for _, ch := range c.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (c *Controller) settleLocked(gen uint64, outcome Outcome, attempt Attempt) {
	attempt.Generation = gen
	if started, ok := c.started[gen]; ok {
		attempt.Duration = time.Since(started)
		delete(c.started, gen)
	}

	switch outcome {
	case Stale:
		c.discarded.Add(1)
		attempt.Outcome = AttemptStale
		log.Printf("[loader] dropped result of superseded load #%d (current #%d)", gen, c.machine.Generation())
	case Masked:
		attempt.Outcome = AttemptMasked
		log.Printf("[loader] result of load #%d not shown, view is %s", gen, c.machine.State().Kind)
	}

	if attempt.Err != nil && outcome != Stale {
		log.Printf("[loader] load #%d failed (%s): %v", gen, attempt.Cause, attempt.Err)
	}

	if c.opts.Recorder != nil {
		c.opts.Recorder.RecordAttempt(attempt)
	}
	for _, ch := range c.settled {
		select {
		case ch <- attempt:
		default:
		}
	}
}
