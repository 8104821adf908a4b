// Package polling mirrors a remote catalog into a local catalog database on
// an interval.
package polling

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harborline/quotebuilder/pkg/catalog"
	"github.com/harborline/quotebuilder/pkg/quote"
)

var syncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebuilder_catalog_syncs_total",
	Help: "Catalog mirror runs by result",
}, []string{"result"})

// ErrEmptyCatalog is returned when the source has no motors while the
// destination still does.
var ErrEmptyCatalog = errors.New("source returned an empty catalog")

// Destination is where a polled snapshot is written.
type Destination interface {
	Load(ctx context.Context) (catalog.Snapshot, error)
	Import(ctx context.Context, snap catalog.Snapshot) error
}

type Config struct {
	Source      catalog.Source
	Destination Destination
	// Interval between runs. Zero runs once.
	Interval time.Duration
	Log      quote.Logger // optional; nil = no logging

	// OnSync is called after every run.
	OnSync func(Result, error)
}

// Result holds the outcome of one run.
type Result struct {
	Motors     int
	Promotions int
	Rules      int
	Took       time.Duration
}

// SyncOnce copies the source snapshot into dst.
func SyncOnce(ctx context.Context, src catalog.Source, dst Destination, log quote.Logger) (Result, error) {
	if log == nil {
		log = quote.NopLogger{}
	}
	start := time.Now()

	snap, err := src.Load(ctx)
	if err != nil {
		syncsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}

	// Safety check: an empty answer from the source must not wipe a populated
	// catalog.
	if len(snap.Motors) == 0 {
		current, err := dst.Load(ctx)
		if err != nil {
			log.Warnf("Could not read current catalog: %v", err)
		} else if len(current.Motors) > 0 {
			log.Errorf("Catalog source returned 0 motors, but the local catalog has %d. Skipping import to prevent data loss.", len(current.Motors))
			syncsTotal.WithLabelValues("skipped").Inc()
			return Result{}, ErrEmptyCatalog
		}
	}

	if err := dst.Import(ctx, snap); err != nil {
		syncsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	syncsTotal.WithLabelValues("ok").Inc()

	r := Result{
		Motors:     len(snap.Motors),
		Promotions: len(snap.Promotions),
		Rules:      len(snap.Rules),
		Took:       time.Since(start),
	}
	log.Infof("Catalog synced: %d motors, %d promotions, %d rules in %s", r.Motors, r.Promotions, r.Rules, r.Took.Round(time.Millisecond))
	return r, nil
}

// Run syncs until ctx is done. Failed runs are logged and retried on the
// next tick.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Log
	if log == nil {
		log = quote.NopLogger{}
	}

	run := func() error {
		r, err := SyncOnce(ctx, cfg.Source, cfg.Destination, log)
		if err != nil && ctx.Err() == nil {
			log.Warnf("Catalog sync failed: %v", err)
		}
		if cfg.OnSync != nil {
			cfg.OnSync(r, err)
		}
		return err
	}

	if cfg.Interval <= 0 {
		return run()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		_ = run()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
