package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/harborline/quotebuilder/pkg/catalog"
	"github.com/harborline/quotebuilder/pkg/quote"
)

func withConfig(t *testing.T, kv map[string]interface{}) {
	t.Helper()
	viper.Reset()
	setDefaults()
	for k, v := range kv {
		viper.Set(k, v)
	}
	t.Cleanup(viper.Reset)
}

func TestOpenBackendKinds(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		path    string
	}{
		{"sqlite", filepath.Join(dir, "quotes.sqlite")},
		{"badger", filepath.Join(dir, "badger")},
		{"file", filepath.Join(dir, "files")},
		{"memory", ""},
	}
	for _, tt := range tests {
		withConfig(t, map[string]interface{}{"storage.backend": tt.backend, "storage.path": tt.path})
		b, err := openBackend()
		if err != nil {
			t.Fatalf("%s: openBackend: %v", tt.backend, err)
		}
		ctx := context.Background()
		if err := b.Put(ctx, "k", []byte(`{}`)); err != nil {
			t.Fatalf("%s: Put: %v", tt.backend, err)
		}
		if got, err := b.Get(ctx, "k"); err != nil || string(got) != `{}` {
			t.Fatalf("%s: Get = %q, %v", tt.backend, got, err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("%s: Close: %v", tt.backend, err)
		}
	}

	withConfig(t, map[string]interface{}{"storage.backend": "etcd"})
	if _, err := openBackend(); err == nil {
		t.Fatalf("expected an error for an unknown backend")
	}
}

func TestOpenCatalogRequiresLocation(t *testing.T) {
	withConfig(t, map[string]interface{}{"catalog.driver": "http"})
	if _, _, err := openCatalog(); err == nil {
		t.Fatalf("expected an error without catalog.url")
	}

	withConfig(t, map[string]interface{}{"catalog.driver": "postgres"})
	if _, _, err := openCatalog(); err == nil {
		t.Fatalf("expected an error without catalog.dsn")
	}
}

func TestEnvSessionUsesConfiguredStores(t *testing.T) {
	dir := t.TempDir()
	withConfig(t, map[string]interface{}{
		"storage.backend":  "file",
		"storage.path":     filepath.Join(dir, "quotes"),
		"catalog.dsn":      filepath.Join(dir, "catalog.sqlite"),
		"recovery.timeout": "2s",
		"recovery.tick":    "100ms",
	})

	store, err := openCatalogStore()
	if err != nil {
		t.Fatalf("openCatalogStore: %v", err)
	}
	ctx := context.Background()
	err = store.Import(ctx, catalog.Snapshot{
		Motors: []catalog.Motor{{ID: "f20", Model: "F20MH", Horsepower: 20, BasePrice: 3800}},
	})
	store.Close()
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	e, err := openEnv()
	if err != nil {
		t.Fatalf("openEnv: %v", err)
	}
	defer e.Close()

	err = withWriteLock(func() error {
		s := e.newSession(e.gateway)
		if _, err := s.Open(ctx); err != nil {
			return err
		}
		if _, err := s.SelectMotor("f20"); err != nil {
			return err
		}
		if _, err := s.Advance(ctx, quote.StepMotor); err != nil {
			return err
		}
		return s.Close(ctx)
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	r, err := e.gateway.Inspect(ctx)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !r.Present || r.State.Motor == nil || r.State.Motor.ID != "f20" {
		t.Fatalf("stored quote = %+v", r)
	}
}
