package storage

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harborline/quotebuilder/pkg/quote"
)

const (
	DefaultKey        = "quoteBuilder"
	DefaultStaleAfter = 30 * 24 * time.Hour
)

var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotebuilder_storage_loads_total",
		Help: "Persisted quote loads by outcome",
	}, []string{"outcome"})
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotebuilder_storage_saves_total",
		Help: "Persisted quote writes by result",
	}, []string{"result"})
	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotebuilder_storage_save_duration_seconds",
		Help:    "Time spent writing a persisted quote",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)

// Options configure a Gateway.
type Options struct {
	Key        string
	StaleAfter time.Duration
	Now        func() time.Time
	Logger     quote.Logger
}

// Gateway persists one configuration under one key.
type Gateway struct {
	backend    Backend
	key        string
	staleAfter time.Duration
	now        func() time.Time
	log        quote.Logger
}

func NewGateway(b Backend, opts Options) *Gateway {
	g := &Gateway{
		backend:    b,
		key:        opts.Key,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		log:        opts.Logger,
	}
	if g.key == "" {
		g.key = DefaultKey
	}
	if g.staleAfter <= 0 {
		g.staleAfter = DefaultStaleAfter
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.log == nil {
		g.log = quote.NopLogger{}
	}
	return g
}

// WithKey returns a gateway over the same backend for another key.
func (g *Gateway) WithKey(key string) *Gateway {
	cp := *g
	cp.key = key
	return &cp
}

func (g *Gateway) Key() string { return g.key }

// Load reads the stored configuration. A missing or stale blob yields the
// empty configuration and no error. A corrupt blob yields the empty
// configuration and a *CorruptionError.
func (g *Gateway) Load(ctx context.Context) (quote.Configuration, error) {
	blob, err := g.backend.Get(ctx, g.key)
	if errors.Is(err, ErrNotFound) {
		loadsTotal.WithLabelValues("absent").Inc()
		return quote.Empty(), nil
	}
	if err != nil {
		loadsTotal.WithLabelValues("error").Inc()
		return quote.Empty(), err
	}

	c, meta, err := Decode(g.key, blob)
	if err != nil {
		loadsTotal.WithLabelValues("corrupt").Inc()
		g.log.Warnf("Discarding persisted quote: %v", err)
		return quote.Empty(), err
	}
	if age := g.now().Sub(meta.LastActivity); age > g.staleAfter {
		loadsTotal.WithLabelValues("stale").Inc()
		g.log.Infof("Persisted quote %q is %s old, treating it as absent", g.key, age.Round(time.Hour))
		return quote.Empty(), nil
	}
	loadsTotal.WithLabelValues("restored").Inc()
	return c, nil
}

// Save writes c, stamping timestamp and lastActivity with the current time.
func (g *Gateway) Save(ctx context.Context, c quote.Configuration) error {
	start := time.Now()
	blob, err := Encode(c, g.now())
	if err == nil {
		err = g.backend.Put(ctx, g.key, blob)
	}
	saveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		savesTotal.WithLabelValues("error").Inc()
		return err
	}
	savesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Clear removes the stored blob.
func (g *Gateway) Clear(ctx context.Context) error {
	err := g.backend.Delete(ctx, g.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Report describes what is stored under a key without altering it.
type Report struct {
	Key     string              `json:"key"`
	Present bool                `json:"present"`
	Stale   bool                `json:"stale"`
	Corrupt string              `json:"corrupt,omitempty"`
	Size    int                 `json:"size"`
	Meta    Meta                `json:"meta"`
	State   quote.Configuration `json:"state"`
}

// Inspect reads the blob and reports its condition. Only backend failures
// are returned as errors.
func (g *Gateway) Inspect(ctx context.Context) (Report, error) {
	r := Report{Key: g.key, State: quote.Empty()}
	blob, err := g.backend.Get(ctx, g.key)
	if errors.Is(err, ErrNotFound) {
		return r, nil
	}
	if err != nil {
		return r, err
	}
	r.Present = true
	r.Size = len(blob)

	c, meta, err := Decode(g.key, blob)
	if err != nil {
		r.Corrupt = err.Error()
		return r, nil
	}
	r.Meta = meta
	r.State = c
	r.Stale = g.now().Sub(meta.LastActivity) > g.staleAfter
	return r, nil
}

// Keys lists every key in the backend.
func (g *Gateway) Keys(ctx context.Context) ([]string, error) {
	return g.backend.Keys(ctx)
}
