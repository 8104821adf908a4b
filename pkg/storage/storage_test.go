package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/harborline/quotebuilder/pkg/quote"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()

	lite, err := Open(filepath.Join(dir, "quotes.sqlite"))
	require.NoError(t, err)
	kv, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	files, err := OpenFiles(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	all := map[string]Backend{
		"memory": NewMemory(),
		"sqlite": lite,
		"badger": kv,
		"files":  files,
	}
	t.Cleanup(func() {
		for _, b := range all {
			b.Close()
		}
	})
	return all
}

func TestBackendContract(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(ctx, "quoteBuilder")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Put(ctx, "quoteBuilder", []byte(`{"a":1}`)))
			require.NoError(t, b.Put(ctx, "quoteBuilder:7f3c", []byte(`{"b":2}`)))
			require.NoError(t, b.Put(ctx, "quoteBuilder", []byte(`{"a":2}`)))

			got, err := b.Get(ctx, "quoteBuilder")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got))

			keys, err := b.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"quoteBuilder", "quoteBuilder:7f3c"}, keys)

			require.NoError(t, b.Delete(ctx, "quoteBuilder"))
			require.NoError(t, b.Delete(ctx, "quoteBuilder"))
			_, err = b.Get(ctx, "quoteBuilder")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func sample() quote.Configuration {
	c := quote.Reduce(quote.Empty(), quote.SetMotor{Motor: &quote.Motor{ID: "f115", Horsepower: 115, Model: "115 ELPT", BasePrice: 14500, Price: 13200}})
	c = quote.Reduce(c, quote.SetPurchasePath{Path: quote.PathInstalled})
	c = quote.Reduce(c, quote.AddOption{Option: quote.SelectedOption{OptionID: "controls", Price: 900, AssignmentType: quote.AssignmentRequired}})
	c = quote.Reduce(c, quote.CompleteStep{Step: quote.StepMotor})
	c = quote.Reduce(c, quote.CompleteStep{Step: quote.StepPath})
	return quote.Reduce(c, quote.SetCurrentStep{Step: quote.StepBoatInfo})
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			g := NewGateway(b, Options{Now: clk.now})

			want := sample()
			require.NoError(t, g.Save(ctx, want))

			got, err := g.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			require.NoError(t, g.Clear(ctx))
			got, err = g.Load(ctx)
			require.NoError(t, err)
			assert.True(t, got.IsEmpty())
		})
	}
}

func TestEncodeStampsBothTimesTogether(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	blob, err := Encode(sample(), now)
	require.NoError(t, err)

	res := gjson.ParseBytes(blob)
	assert.Equal(t, now.UnixMilli(), res.Get("timestamp").Int())
	assert.Equal(t, res.Get("timestamp").Int(), res.Get("lastActivity").Int())
	assert.Equal(t, "f115", res.Get("state.motor.id").String())
	assert.False(t, res.Get("state.isLoading").Exists())
}

func TestGatewayTreatsStaleAsAbsent(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGateway(NewMemory(), Options{Now: clk.now})
	require.NoError(t, g.Save(ctx, sample()))

	clk.t = clk.t.Add(DefaultStaleAfter - time.Minute)
	got, err := g.Load(ctx)
	require.NoError(t, err)
	assert.False(t, got.IsEmpty())

	clk.t = clk.t.Add(2 * time.Minute)
	got, err = g.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())

	rep, err := g.Inspect(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Present)
	assert.True(t, rep.Stale)
}

func TestGatewayCorruptBlobs(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"not json", `{"state": {`},
		{"array envelope", `[1,2,3]`},
		{"missing state", `{"timestamp": 1767268800000, "lastActivity": 1767268800000}`},
		{"state is a string", `{"state": "motor", "timestamp": 1767268800000}`},
		{"string timestamp", `{"state": {}, "timestamp": "yesterday"}`},
		{"missing timestamp", `{"state": {}}`},
		{"bad lastActivity", `{"state": {}, "timestamp": 1767268800000, "lastActivity": true}`},
		{"wrong field type", `{"state": {"completedSteps": "all"}, "timestamp": 1767268800000}`},
		{"wrong nested type", `{"state": {"motor": {"hp": "lots"}}, "timestamp": 1767268800000}`},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewMemory()
			require.NoError(t, b.Put(ctx, DefaultKey, []byte(tt.blob)))
			g := NewGateway(b, Options{Now: func() time.Time { return time.UnixMilli(1767268800000) }})

			got, err := g.Load(ctx)
			assert.True(t, got.IsEmpty())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
			var ce *CorruptionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, DefaultKey, ce.Key)

			rep, err := g.Inspect(ctx)
			require.NoError(t, err)
			assert.NotEmpty(t, rep.Corrupt)
		})
	}
}

func TestDecodeNormalizesAndDefaultsLastActivity(t *testing.T) {
	blob := `{"state": {"purchasePath": "boat-show", "completedSteps": [4, 1, 4, 9], "isLoading": true}, "timestamp": 1767268800000}`
	c, meta, err := Decode("k", []byte(blob))
	require.NoError(t, err)
	assert.Equal(t, quote.PathNone, c.PurchasePath)
	assert.Equal(t, []int{1, 4}, c.CompletedSteps)
	assert.False(t, c.IsLoading)
	assert.Equal(t, meta.Timestamp, meta.LastActivity)
}

func TestStoreHydratesThroughGateway(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemory(), Options{Key: "quoteBuilder:session"})

	first := quote.NewStore(g, nil)
	first.Hydrate(ctx, g)
	first.Dispatch(quote.SetMotor{Motor: &quote.Motor{ID: "f20", Price: 3900}})
	_, err := first.Advance(ctx, quote.StepMotor, quote.StepPath)
	require.NoError(t, err)

	// A second store on the same key picks up where the first left off.
	second := quote.NewStore(g, nil)
	got := second.Hydrate(ctx, g)
	require.NotNil(t, got.Motor)
	assert.Equal(t, "f20", got.Motor.ID)
	assert.Equal(t, []int{quote.StepMotor}, got.CompletedSteps)
	assert.Equal(t, quote.StepPath, got.CurrentStep)
	first.Wait()
	second.Wait()

	// Other keys are untouched.
	other, err := g.WithKey("quoteBuilder:other").Load(ctx)
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())
}
