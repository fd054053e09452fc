package promo

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
)

var (
	fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past     = fixedNow.Add(-24 * time.Hour)
	future   = fixedNow.Add(24 * time.Hour)
)

func activePromo(id, discount string) catalog.Promo {
	return catalog.Promo{ID: id, Name: id, Discount: discount, StartDate: past, EndDate: future}
}

func hokGame(promos ...catalog.Promo) catalog.Game {
	return catalog.Game{
		ID:         "HOK",
		Name:       "Honor of Kings",
		Categories: []string{"moba"},
		Products: []catalog.Product{
			{ID: "HOK-VC-01", Name: "80 Tokens", Price: 18000},
			{ID: "HOK-VC-02", Name: "240 Tokens", Price: 52000},
			{ID: "HOK-VC-03", Name: "400 Tokens", Price: 86000},
		},
		Promos: promos,
	}
}

func resolve(t *testing.T, s *catalog.Snapshot, productID, method string) Resolution {
	t.Helper()
	r := NewResolver(zap.NewNop())
	res, err := r.Resolve(context.Background(), s, Query{ProductID: productID, PaymentMethod: method, Now: fixedNow})
	require.NoError(t, err)
	return res
}

func TestResolve_NoPromo(t *testing.T) {
	s := catalog.NewSnapshot([]catalog.Game{hokGame()}, nil)

	res := resolve(t, s, "HOK-VC-01", "QRIS")
	assert.False(t, res.Found())
	assert.Equal(t, TierNone, res.Tier)
	assert.True(t, res.Percent.IsZero())
}

func TestResolve_ProductScopedForOtherProductsIgnored(t *testing.T) {
	p := activePromo("PROMO-ML-01", "10%")
	p.ApplicableProducts = []string{"ML-TW-01", "ML-TW-02"}
	game := catalog.Game{
		ID:       "ML",
		Products: []catalog.Product{{ID: "ML-DM-01", Price: 19000}, {ID: "ML-TW-01", Price: 150000}},
		Promos:   []catalog.Promo{p},
	}
	s := catalog.NewSnapshot([]catalog.Game{game}, nil)

	res := resolve(t, s, "ML-DM-01", "")
	assert.False(t, res.Found())
}

func TestResolve_ProductScopedGamePromo(t *testing.T) {
	p := activePromo("PROMO-HOK-01", "10%")
	p.ApplicableProducts = []string{"HOK-VC-01", "HOK-VC-02"}
	s := catalog.NewSnapshot([]catalog.Game{hokGame(p)}, nil)

	res := resolve(t, s, "HOK-VC-01", "")
	require.True(t, res.Found())
	assert.Equal(t, "PROMO-HOK-01", res.Promo.ID)
	assert.Equal(t, TierProduct, res.Tier)
	assert.True(t, decimal.NewFromInt(10).Equal(res.Percent))

	assert.False(t, resolve(t, s, "HOK-VC-03", "").Found())
}

func TestResolve_Precedence(t *testing.T) {
	productScoped := activePromo("P-PRODUCT", "20%")
	productScoped.ApplicableProducts = []string{"HOK-VC-01"}
	gameWide := activePromo("P-GAME", "50%")

	category := activePromo("P-CATEGORY", "70%")
	category.ApplicableCategories = []string{"moba"}
	method := activePromo("P-METHOD", "90%")
	method.PaymentMethod = "QRIS"

	tests := []struct {
		name     string
		owned    []catalog.Promo
		global   []catalog.Promo
		product  string
		wantID   string
		wantTier Tier
	}{
		{
			name:     "product beats game even when smaller",
			owned:    []catalog.Promo{gameWide, productScoped},
			global:   []catalog.Promo{category, method},
			product:  "HOK-VC-01",
			wantID:   "P-PRODUCT",
			wantTier: TierProduct,
		},
		{
			name:     "game applies to products without a product promo",
			owned:    []catalog.Promo{gameWide, productScoped},
			global:   []catalog.Promo{category, method},
			product:  "HOK-VC-02",
			wantID:   "P-GAME",
			wantTier: TierGame,
		},
		{
			name:     "category beats payment method",
			global:   []catalog.Promo{method, category},
			product:  "HOK-VC-02",
			wantID:   "P-CATEGORY",
			wantTier: TierCategory,
		},
		{
			name:     "payment method as last resort",
			global:   []catalog.Promo{method},
			product:  "HOK-VC-02",
			wantID:   "P-METHOD",
			wantTier: TierPaymentMethod,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := catalog.NewSnapshot([]catalog.Game{hokGame(tt.owned...)}, tt.global)
			res := resolve(t, s, tt.product, "QRIS")
			require.True(t, res.Found())
			assert.Equal(t, tt.wantID, res.Promo.ID)
			assert.Equal(t, tt.wantTier, res.Tier)
		})
	}
}

func TestResolve_GlobalScopes(t *testing.T) {
	byProduct := activePromo("G-PRODUCT", "3%")
	byProduct.ApplicableProducts = []string{"HOK-VC-03"}
	byGame := activePromo("G-GAME", "4%")
	byGame.ApplicableGames = []string{"HOK"}
	otherCategory := activePromo("G-RPG", "80%")
	otherCategory.ApplicableCategories = []string{"rpg"}
	unscoped := activePromo("G-NOTHING", "99%")

	s := catalog.NewSnapshot([]catalog.Game{hokGame()},
		[]catalog.Promo{byProduct, byGame, otherCategory, unscoped})

	res := resolve(t, s, "HOK-VC-03", "")
	require.True(t, res.Found())
	assert.Equal(t, "G-PRODUCT", res.Promo.ID)
	assert.Equal(t, TierProduct, res.Tier)

	res = resolve(t, s, "HOK-VC-01", "")
	require.True(t, res.Found())
	assert.Equal(t, "G-GAME", res.Promo.ID)
	assert.Equal(t, TierGame, res.Tier)
}

func TestResolve_UnscopedGlobalAppliesToNothing(t *testing.T) {
	s := catalog.NewSnapshot([]catalog.Game{hokGame()}, []catalog.Promo{activePromo("G-NOTHING", "50%")})
	assert.False(t, resolve(t, s, "HOK-VC-01", "QRIS").Found())
}

func TestResolve_PaymentMethodMismatch(t *testing.T) {
	p := activePromo("G-DANA", "5%")
	p.PaymentMethod = "DANA"
	s := catalog.NewSnapshot([]catalog.Game{hokGame()}, []catalog.Promo{p})

	assert.False(t, resolve(t, s, "HOK-VC-01", "QRIS").Found())
	assert.True(t, resolve(t, s, "HOK-VC-01", "dana").Found(), "payment method matching is case-insensitive")
}

func TestResolve_TieBreaks(t *testing.T) {
	a := activePromo("B-LATER", "10%")
	a.StartDate = past.Add(time.Hour)
	b := activePromo("C-EARLIER", "10%")
	c := activePromo("A-EARLIER", "10%")
	smaller := activePromo("0-SMALL", "5%")

	t.Run("largest discount wins", func(t *testing.T) {
		s := catalog.NewSnapshot([]catalog.Game{hokGame(smaller, a)}, nil)
		assert.Equal(t, "B-LATER", resolve(t, s, "HOK-VC-01", "").Promo.ID)
	})
	t.Run("earliest start wins on equal discount", func(t *testing.T) {
		s := catalog.NewSnapshot([]catalog.Game{hokGame(a, b)}, nil)
		assert.Equal(t, "C-EARLIER", resolve(t, s, "HOK-VC-01", "").Promo.ID)
	})
	t.Run("lowest id wins on equal discount and start", func(t *testing.T) {
		s := catalog.NewSnapshot([]catalog.Game{hokGame(b, c)}, nil)
		assert.Equal(t, "A-EARLIER", resolve(t, s, "HOK-VC-01", "").Promo.ID)
	})
}

func TestResolve_TemporalBoundaries(t *testing.T) {
	atStart := catalog.Promo{ID: "START", Discount: "10%", StartDate: fixedNow, EndDate: future}
	atEnd := catalog.Promo{ID: "END", Discount: "10%", StartDate: past, EndDate: fixedNow}
	notYet := catalog.Promo{ID: "NOTYET", Discount: "10%", StartDate: fixedNow.Add(time.Nanosecond), EndDate: future}
	expired := catalog.Promo{ID: "EXPIRED", Discount: "10%", StartDate: past, EndDate: fixedNow.Add(-time.Nanosecond)}

	tests := []struct {
		promo catalog.Promo
		want  bool
	}{
		{promo: atStart, want: true},
		{promo: atEnd, want: true},
		{promo: notYet, want: false},
		{promo: expired, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.promo.ID, func(t *testing.T) {
			s := catalog.NewSnapshot([]catalog.Game{hokGame(tt.promo)}, nil)
			assert.Equal(t, tt.want, resolve(t, s, "HOK-VC-01", "").Found())
		})
	}
}

func TestResolve_MalformedDataIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(zap.New(core))

	inverted := catalog.Promo{ID: "INVERTED", Discount: "90%", StartDate: future, EndDate: past}
	garbage := activePromo("GARBAGE", "ten percent")
	zeroish := activePromo("ZERO", "0%")

	s := catalog.NewSnapshot([]catalog.Game{hokGame(inverted, garbage, zeroish)}, nil)
	res, err := r.Resolve(context.Background(), s, Query{ProductID: "HOK-VC-01", Now: fixedNow})
	require.NoError(t, err)

	// Both remaining candidates are 0%; equal start dates fall back to id order.
	require.True(t, res.Found())
	assert.Equal(t, "GARBAGE", res.Promo.ID)
	assert.True(t, res.Percent.IsZero())

	assert.Equal(t, 1, logs.FilterField(zap.String("promo_id", "INVERTED")).Len())
	assert.Equal(t, 1, logs.FilterField(zap.String("promo_id", "GARBAGE")).Len())
}

func TestResolve_ExponentDiscountIsMalformed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(zap.New(core))

	for _, discount := range []string{"1e2%", "5E1%", "+10%"} {
		t.Run(discount, func(t *testing.T) {
			s := catalog.NewSnapshot([]catalog.Game{hokGame(activePromo("TYPO", discount))}, nil)
			res, err := r.Resolve(context.Background(), s, Query{ProductID: "HOK-VC-01", Now: fixedNow})
			require.NoError(t, err)
			require.True(t, res.Found())
			assert.True(t, res.Percent.IsZero(), "got %s", res.Percent)
		})
	}
	assert.Equal(t, 3, logs.FilterField(zap.String("promo_id", "TYPO")).Len())
}

func TestResolve_OutOfRangeDiscountClamped(t *testing.T) {
	s := catalog.NewSnapshot([]catalog.Game{hokGame(activePromo("HUGE", "250%"))}, nil)
	res := resolve(t, s, "HOK-VC-01", "")
	assert.True(t, decimal.NewFromInt(100).Equal(res.Percent))
}

func TestResolve_Idempotent(t *testing.T) {
	p := activePromo("P", "15%")
	s := catalog.NewSnapshot([]catalog.Game{hokGame(p)}, nil)
	r := NewResolver(nil)
	q := Query{ProductID: "HOK-VC-02", PaymentMethod: "QRIS", Now: fixedNow}

	first, err := r.Resolve(context.Background(), s, q)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), s, q)
	require.NoError(t, err)

	assert.Equal(t, first.Promo.ID, second.Promo.ID)
	assert.Equal(t, first.Tier, second.Tier)
	assert.True(t, first.Percent.Equal(second.Percent))
}

type failingStore struct {
	catalog.Store
	err error
}

func (f failingStore) GetProduct(context.Context, string) (*catalog.Product, error) {
	return nil, f.err
}

func TestResolve_StoreErrors(t *testing.T) {
	s := catalog.NewSnapshot([]catalog.Game{hokGame()}, nil)
	r := NewResolver(nil)

	_, err := r.Resolve(context.Background(), s, Query{ProductID: "XX-000", Now: fixedNow})
	require.ErrorIs(t, err, catalog.ErrProductNotFound)

	boom := errors.New("boom")
	_, err = r.Resolve(context.Background(), failingStore{err: boom}, Query{ProductID: "HOK-VC-01", Now: fixedNow})
	require.ErrorIs(t, err, boom)
}
