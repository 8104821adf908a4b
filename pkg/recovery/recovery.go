// Package recovery supervises the initial load of a quote session. It either
// reaches Ready, or gives up after a hard timeout and enters Emergency, where
// the caller must pick one of three explicit recovery actions.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/harborline/quotebuilder/pkg/quote"
)

var (
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotebuilder_recovery_outcomes_total",
		Help: "Initial load outcomes",
	}, []string{"outcome"})
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotebuilder_recovery_actions_total",
		Help: "Recovery actions taken from emergency mode",
	}, []string{"action"})
	hydrationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotebuilder_hydration_duration_seconds",
		Help:    "Time from start to ready",
		Buckets: prometheus.DefBuckets,
	})
)

// ErrNotEmergency is returned by Recover outside emergency mode.
var ErrNotEmergency = errors.New("recovery actions are only available in emergency mode")

type State int

const (
	Loading State = iota
	Ready
	Emergency
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Emergency:
		return "emergency"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "loading":
		*s = Loading
	case "ready":
		*s = Ready
	case "emergency":
		*s = Emergency
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// Action is one of the choices offered in emergency mode.
type Action string

const (
	// ActionForceStartNew empties the in-memory quote and keeps the stored one.
	ActionForceStartNew Action = "force_start_new"
	// ActionClearAndRestart deletes the stored quote and loads again.
	ActionClearAndRestart Action = "clear_and_restart"
	// ActionReload loads again without touching any state.
	ActionReload Action = "reload"
)

// Actions lists what Recover accepts, in display order.
var Actions = []Action{ActionForceStartNew, ActionClearAndRestart, ActionReload}

var DefaultMessages = []string{
	"Loading your quote...",
	"Restoring your saved configuration...",
	"Checking current promotions...",
	"Almost there...",
}

type Config struct {
	Timeout  time.Duration
	Tick     time.Duration
	Messages []string
	// OnMessage, when set, is called with each rotated message.
	OnMessage func(string)
	Logger    quote.Logger
}

func DefaultConfig() Config {
	return Config{Timeout: 8 * time.Second, Tick: 2 * time.Second, Messages: DefaultMessages}
}

// Hooks connect the controller to the session it supervises.
type Hooks struct {
	// Hydrate runs concurrently. All must succeed for Ready. A failure is not
	// retried; the hard timeout decides.
	Hydrate []func(ctx context.Context) error
	// ForceStartNew resets the in-memory quote.
	ForceStartNew func()
	// ClearAll purges the stored quote.
	ClearAll func(ctx context.Context) error
}

type Controller struct {
	cfg   Config
	hooks Hooks
	log   quote.Logger

	mu         sync.Mutex
	state      State
	msg        int
	gen        uint64
	parent     context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	doneClosed bool
	wg         sync.WaitGroup
}

func New(cfg Config, hooks Hooks) *Controller {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if len(cfg.Messages) == 0 {
		cfg.Messages = def.Messages
	}
	log := cfg.Logger
	if log == nil {
		log = quote.NopLogger{}
	}
	done := make(chan struct{})
	return &Controller{cfg: cfg, hooks: hooks, log: log, done: done}
}

// Start begins a load attempt. Any previous attempt is abandoned first.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.releaseLocked()
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(ctx)
	c.parent = ctx
	c.cancel = cancel
	c.state = Loading
	c.msg = 0
	c.done = make(chan struct{})
	c.doneClosed = false
	c.mu.Unlock()

	hydrated := make(chan error, 1)
	started := time.Now()
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		hydrated <- c.hydrate(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.watch(runCtx, gen, started, hydrated)
	}()
}

func (c *Controller) hydrate(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range c.hooks.Hydrate {
		task := task
		g.Go(func() error { return task(gctx) })
	}
	return g.Wait()
}

func (c *Controller) watch(ctx context.Context, gen uint64, started time.Time, hydrated <-chan error) {
	timeout := time.NewTimer(c.cfg.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-hydrated:
			if err != nil {
				c.log.Warnf("Quote session failed to load, waiting for timeout: %v", err)
				hydrated = nil
				continue
			}
			if c.transition(gen, Ready) {
				hydrationSeconds.Observe(time.Since(started).Seconds())
				c.log.Debugf("Quote session ready after %s", time.Since(started))
			}
			return
		case <-ticker.C:
			c.rotate(gen)
		case <-timeout.C:
			if c.transition(gen, Emergency) {
				c.log.Warnf("Quote session not ready after %s, entering emergency mode", c.cfg.Timeout)
				c.mu.Lock()
				if c.gen == gen && c.cancel != nil {
					c.cancel()
				}
				c.mu.Unlock()
			}
			return
		}
	}
}

func (c *Controller) rotate(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Loading {
		c.mu.Unlock()
		return
	}
	c.msg = (c.msg + 1) % len(c.cfg.Messages)
	m := c.cfg.Messages[c.msg]
	c.mu.Unlock()
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(m)
	}
}

// transition leaves Loading for the attempt gen. Late events from an
// abandoned attempt are ignored.
func (c *Controller) transition(gen uint64, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != Loading {
		return false
	}
	c.state = to
	c.releaseLocked()
	outcomesTotal.WithLabelValues(to.String()).Inc()
	return true
}

func (c *Controller) releaseLocked() {
	if !c.doneClosed {
		close(c.done)
		c.doneClosed = true
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Message is the progress text to show while loading.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Messages[c.msg]
}

// Wait blocks until the current attempt leaves Loading, is stopped, or ctx
// ends.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Stop cancels timers and any running hydration. Nothing fires afterwards.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.releaseLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

// Recover performs one of the emergency actions.
func (c *Controller) Recover(ctx context.Context, a Action) error {
	c.mu.Lock()
	if c.state != Emergency {
		c.mu.Unlock()
		return ErrNotEmergency
	}
	parent := c.parent
	c.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	switch a {
	case ActionForceStartNew:
		if c.hooks.ForceStartNew != nil {
			c.hooks.ForceStartNew()
		}
		c.mu.Lock()
		c.state = Ready
		c.mu.Unlock()
	case ActionClearAndRestart:
		if c.hooks.ClearAll != nil {
			if err := c.hooks.ClearAll(ctx); err != nil {
				return fmt.Errorf("clear stored quote: %w", err)
			}
		}
		c.Start(parent)
	case ActionReload:
		c.Start(parent)
	default:
		return fmt.Errorf("unknown recovery action %q", a)
	}
	actionsTotal.WithLabelValues(string(a)).Inc()
	c.log.Infof("Recovery action %s taken", a)
	return nil
}
