package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harborline/quotebuilder/internal/utils"
	"github.com/harborline/quotebuilder/pkg/builder"
	"github.com/harborline/quotebuilder/pkg/catalog"
	"github.com/harborline/quotebuilder/pkg/finance"
	"github.com/harborline/quotebuilder/pkg/recovery"
	"github.com/harborline/quotebuilder/pkg/storage"
)

// env holds everything a command needs to run a quote session.
type env struct {
	backend storage.Backend
	gateway *storage.Gateway
	source  catalog.Source
	closers []func() error

	staleAfter time.Duration
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			utils.Log.Warnf("Closing: %v", err)
		}
	}
}

func dataPath(configured, name string) (string, error) {
	if configured != "" {
		return filepath.Abs(configured)
	}
	dir, err := utils.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// storagePath is the on-disk location of the configured backend, empty for
// the memory backend.
func storagePath() (string, error) {
	configured := viper.GetString("storage.path")
	switch viper.GetString("storage.backend") {
	case "sqlite":
		if configured == "" {
			path, err := utils.GetAbsDBPath("")
			if err != nil {
				return "", err
			}
			return path, os.MkdirAll(filepath.Dir(path), 0o755)
		}
		return utils.GetAbsDBPath(configured)
	case "badger":
		return dataPath(configured, "badger")
	case "file":
		return dataPath(configured, "quotes")
	}
	return "", nil
}

func openBackend() (storage.Backend, error) {
	path, err := storagePath()
	if err != nil {
		return nil, err
	}
	switch backend := viper.GetString("storage.backend"); backend {
	case "sqlite":
		return storage.Open(path)
	case "badger":
		return storage.OpenBadger(storage.BadgerConfig{Path: path, Logger: utils.Log})
	case "file":
		return storage.OpenFiles(path)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func openCatalogStore() (*catalog.SQLStore, error) {
	driver := viper.GetString("catalog.driver")
	dsn := viper.GetString("catalog.dsn")
	switch driver {
	case "sqlite":
		path, err := dataPath(dsn, "catalog.sqlite")
		if err != nil {
			return nil, err
		}
		return catalog.OpenSQL(driver, path)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("catalog.dsn is required for the postgres driver")
		}
		return catalog.OpenSQL(driver, dsn)
	}
	return nil, fmt.Errorf("catalog driver %q is not a database", driver)
}

func openCatalog() (catalog.Source, func() error, error) {
	if viper.GetString("catalog.driver") == "http" {
		url := viper.GetString("catalog.url")
		if url == "" {
			return nil, nil, fmt.Errorf("catalog.url is required for the http driver")
		}
		src := catalog.NewHTTPSource(url, viper.GetString("catalog.token"),
			viper.GetInt("catalog.retries"), viper.GetDuration("catalog.timeout"))
		return src, func() error { return nil }, nil
	}
	store, err := openCatalogStore()
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func openEnv() (*env, error) {
	e := &env{}
	backend, err := openBackend()
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	e.backend = backend
	e.closers = append(e.closers, backend.Close)

	src, closeSrc, err := openCatalog()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	e.source = src
	e.closers = append(e.closers, closeSrc)

	e.staleAfter = viper.GetDuration("storage.stale_after")
	e.gateway = storage.NewGateway(backend, storage.Options{
		Key:        viper.GetString("storage.key"),
		StaleAfter: e.staleAfter,
		Logger:     utils.Log,
	})
	return e, nil
}

func financeConfig() finance.Config {
	return finance.Config{
		Minimum:        viper.GetFloat64("finance.minimum"),
		DefaultRate:    viper.GetFloat64("finance.default_rate"),
		DefaultTerm:    viper.GetInt("finance.default_term"),
		DeferredMonths: viper.GetInt("finance.deferred_months"),
	}
}

func recoveryConfig() recovery.Config {
	return recovery.Config{
		Timeout: viper.GetDuration("recovery.timeout"),
		Tick:    viper.GetDuration("recovery.tick"),
		Logger:  utils.Log,
	}
}

// newSession builds a session on gw.
func (e *env) newSession(gw *storage.Gateway) *builder.Session {
	return builder.New(builder.Options{
		Gateway:  gw,
		Catalog:  e.source,
		Finance:  financeConfig(),
		Recovery: recoveryConfig(),
		Logger:   utils.Log,
	})
}

// quoteGateway honours the --key flag.
func (e *env) quoteGateway(cmd *cobra.Command) *storage.Gateway {
	if key, _ := cmd.Flags().GetString("key"); key != "" {
		return e.gateway.WithKey(key)
	}
	return e.gateway
}

// withLock serializes CLI access to file-backed stores across processes.
// Writers hold the lock exclusively.
func withLock(exclusive bool, fn func() error) error {
	path, err := storagePath()
	if err != nil {
		return err
	}
	if path == "" {
		return fn()
	}
	lock, err := utils.NewDBLock(path)
	if err != nil {
		return err
	}
	return lock.With(context.Background(), exclusive, fn)
}

func withWriteLock(fn func() error) error { return withLock(true, fn) }
