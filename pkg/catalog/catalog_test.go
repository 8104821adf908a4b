package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceResolution(t *testing.T) {
	tests := []struct {
		name      string
		motor     Motor
		wantList  float64
		wantStart float64
	}{
		{"base only", Motor{BasePrice: 10000}, 10000, 10000},
		{"msrp beats base", Motor{BasePrice: 9000, MSRP: 9500}, 9500, 9500},
		{"manual base wins", Motor{BasePrice: 9000, MSRP: 9500, Manual: Overrides{BasePrice: 9900}}, 9900, 9900},
		{"sale price", Motor{BasePrice: 10000, SalePrice: 9200}, 10000, 9200},
		{"dealer below base", Motor{BasePrice: 10000, DealerPrice: 9400}, 10000, 9400},
		{"dealer above base ignored", Motor{BasePrice: 10000, DealerPrice: 10400}, 10000, 10000},
		{"dealer equal to base ignored", Motor{BasePrice: 10000, DealerPrice: 10000}, 10000, 10000},
		{"manual sale beats sale", Motor{BasePrice: 10000, SalePrice: 9200, Manual: Overrides{SalePrice: 8800}}, 10000, 8800},
		{"no prices", Motor{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantList, tt.motor.ListPrice())
			assert.Equal(t, tt.wantStart, tt.motor.StartingPrice())
		})
	}
}

func fixture() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	min, max := 40.0, 150.0
	return Snapshot{
		Motors: []Motor{
			{ID: "f115", Model: "F115LB", DisplayName: "115 ELPT FourStroke", Family: "FourStroke", MotorType: "outboard", Horsepower: 115, MSRP: 14500, SalePrice: 13200, InStock: true},
			{ID: "f20", Model: "F20MH", Horsepower: 20, BasePrice: 4200, Manual: Overrides{SalePrice: 3900}},
		},
		Promotions: []Promotion{
			{ID: "spring", Name: "Spring Sale", BadgeText: "Spring", Priority: 10, IsActive: true, StartDate: &start, EndDate: &end, BonusWarrantyYears: 2, RebateAmount: 250},
			{ID: "fin", Name: "Low Rate", Priority: 5, IsActive: false, FinancingRate: 2.99, FinancingTerm: 36},
		},
		Rules: []Rule{
			{ID: "r2", PromotionID: "spring", RuleType: RuleHorsepowerRange, HorsepowerMin: &min, HorsepowerMax: &max, DiscountFixedAmount: 300, IsActive: true},
			{ID: "r1", PromotionID: "spring", RuleType: RuleModel, Model: "fourstroke", DiscountPercentage: 5, IsActive: true},
			{ID: "r3", PromotionID: "fin", RuleType: RuleAll, IsActive: false},
		},
	}
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store, err := OpenSQL("sqlite", filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	want := fixture()
	require.NoError(t, store.Import(ctx, want))
	// Importing twice upserts rather than duplicating.
	require.NoError(t, store.Import(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)

	require.Len(t, got.Motors, 2)
	assert.Equal(t, "f20", got.Motors[0].ID)
	assert.Equal(t, want.Motors[1], got.Motors[0])
	assert.Equal(t, want.Motors[0], got.Motors[1])

	require.Len(t, got.Promotions, 2)
	assert.Equal(t, "spring", got.Promotions[0].ID)
	assert.True(t, got.Promotions[0].StartDate.Equal(*want.Promotions[0].StartDate))
	assert.Nil(t, got.Promotions[1].StartDate)
	assert.Equal(t, 2.99, got.Promotions[1].FinancingRate)

	// Rule order survives the round trip even though ids sort differently.
	require.Len(t, got.Rules, 3)
	assert.Equal(t, []string{"r2", "r1", "r3"}, []string{got.Rules[0].ID, got.Rules[1].ID, got.Rules[2].ID})
	assert.Equal(t, 40.0, *got.Rules[0].HorsepowerMin)
	assert.Nil(t, got.Rules[1].HorsepowerMax)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Motors: 2, Promotions: 2, ActivePromotions: 1, Rules: 3}, st)
}

func TestOpenSQLRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQL("mysql", "whatever")
	assert.Error(t, err)
}

func TestRebindForPostgres(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	assert.Equal(t, "VALUES($1,$2,$3)", pg.rebind("VALUES(?,?,?)"))
	lite := &SQLStore{driver: "sqlite"}
	assert.Equal(t, "VALUES(?,?)", lite.rebind("VALUES(?,?)"))
}

func TestHTTPSource(t *testing.T) {
	want := fixture()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	got, err := NewHTTPSource(srv.URL, "s3cret", 0, time.Second).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.Motors, 2)
	assert.Equal(t, want.Rules[0].ID, got.Rules[0].ID)

	_, err = NewHTTPSource(srv.URL, "wrong", 0, time.Second).Load(context.Background())
	assert.ErrorContains(t, err, "status 401")
}

func TestSnapshotFind(t *testing.T) {
	snap := fixture()
	m, ok := snap.Find("f20")
	require.True(t, ok)
	assert.Equal(t, "F20MH", m.Label())

	m, _ = snap.Find("f115")
	assert.Equal(t, "115 ELPT FourStroke", m.Label())

	_, ok = snap.Find("nope")
	assert.False(t, ok)
}
