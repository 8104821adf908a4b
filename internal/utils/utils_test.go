package utils

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestSetLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}
	for _, tt := range tests {
		if err := SetLogLevel(tt.in); err != nil {
			t.Fatalf("SetLogLevel(%q): %v", tt.in, err)
		}
		if got := Log.GetLevel(); got != tt.want {
			t.Fatalf("SetLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if err := SetLogLevel("loud"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
	_ = SetLogLevel("info")
}

func TestSetLogFormat(t *testing.T) {
	if err := SetLogFormat("json"); err != nil {
		t.Fatalf("SetLogFormat(json): %v", err)
	}
	if _, ok := Log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter = %T, want JSONFormatter", Log.Formatter)
	}
	if err := SetLogFormat("xml"); err == nil {
		t.Fatalf("expected an error for an unknown format")
	}
	_ = SetLogFormat("text")
}

func TestGetAbsDBPath(t *testing.T) {
	t.Setenv(DataDirEnv, "")
	got, err := GetAbsDBPath("")
	if err != nil {
		t.Fatalf("GetAbsDBPath: %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join(".config", "quotebuilder", "quotes.sqlite")) {
		t.Fatalf("default path = %q", got)
	}

	dir := t.TempDir()
	t.Setenv(DataDirEnv, dir)
	got, err = GetAbsDBPath("")
	if err != nil {
		t.Fatalf("GetAbsDBPath: %v", err)
	}
	if got != filepath.Join(dir, "quotes.sqlite") {
		t.Fatalf("path with %s = %q", DataDirEnv, got)
	}

	got, err = GetAbsDBPath("quotes.db")
	if err != nil {
		t.Fatalf("GetAbsDBPath: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("path %q is not absolute", got)
	}
}

func TestDBLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.sqlite")
	ctx := context.Background()

	first, err := NewDBLock(path)
	if err != nil {
		t.Fatalf("NewDBLock: %v", err)
	}
	second, err := NewDBLock(path)
	if err != nil {
		t.Fatalf("NewDBLock: %v", err)
	}

	if err := first.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	// A second handle cannot take the lock while the first holds it.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := second.Lock(short); err == nil {
		t.Fatalf("second Lock succeeded while the first was held")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ran := false
	if err := second.With(ctx, true, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("With: %v", err)
	}
	if !ran {
		t.Fatalf("With did not run fn")
	}
}

func TestDBLockShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.sqlite")
	ctx := context.Background()

	a, _ := NewDBLock(path)
	b, _ := NewDBLock(path)
	if err := a.RLock(ctx); err != nil {
		t.Fatalf("RLock: %v", err)
	}
	defer a.Unlock()
	if err := b.RLock(ctx); err != nil {
		t.Fatalf("second RLock: %v", err)
	}
	if err := b.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}
