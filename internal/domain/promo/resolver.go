package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
)

// Tier is the specificity level a promo matched at. Lower values win.
type Tier int

const (
	TierNone Tier = iota
	TierProduct
	TierGame
	TierCategory
	TierPaymentMethod
)

func (t Tier) String() string {
	switch t {
	case TierProduct:
		return "product"
	case TierGame:
		return "game"
	case TierCategory:
		return "category"
	case TierPaymentMethod:
		return "payment_method"
	default:
		return "none"
	}
}

// Resolution is the outcome of promo resolution. Promo is nil when no promo
// applies; Percent is then zero.
type Resolution struct {
	Promo   *catalog.Promo
	Tier    Tier
	Percent decimal.Decimal
}

// Found reports whether a promo applies.
func (r Resolution) Found() bool { return r.Promo != nil }

// Query identifies what to resolve a promo for.
type Query struct {
	ProductID     string
	PaymentMethod string
	Now           time.Time
}

// Resolver picks the best applicable promo for a product. It holds no
// per-call state, so identical queries against the same store produce
// identical results.
type Resolver struct {
	lg *zap.Logger
}

// NewResolver creates a Resolver that reports catalog data-quality problems
// to lg.
func NewResolver(lg *zap.Logger) *Resolver {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Resolver{lg: lg}
}

type candidate struct {
	promo   *catalog.Promo
	percent decimal.Decimal
}

// Resolve returns the winning promo for q. Only catalog lookup failures are
// returned as errors; malformed promos are skipped or treated as 0% and
// logged.
func (r *Resolver) Resolve(ctx context.Context, store catalog.Store, q Query) (Resolution, error) {
	if _, err := store.GetProduct(ctx, q.ProductID); err != nil {
		return Resolution{}, errors.Wrap(err, "get product")
	}
	game, err := store.GetProductOwner(ctx, q.ProductID)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "get product owner")
	}
	global, err := store.GlobalPromos(ctx)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "list global promos")
	}

	var tiers [TierPaymentMethod + 1][]candidate
	add := func(t Tier, p *catalog.Promo) {
		tiers[t] = append(tiers[t], candidate{promo: p, percent: r.percent(p)})
	}

	for i := range game.Promos {
		p := &game.Promos[i]
		if !r.usable(p, q.Now) {
			continue
		}
		switch {
		case len(p.ApplicableProducts) == 0:
			add(TierGame, p)
		case p.AppliesToProduct(q.ProductID):
			add(TierProduct, p)
		}
	}

	for i := range global {
		p := &global[i]
		if !r.usable(p, q.Now) {
			continue
		}
		if t := globalTier(p, game, q); t != TierNone {
			add(t, p)
		}
	}

	for t := TierProduct; t <= TierPaymentMethod; t++ {
		if len(tiers[t]) == 0 {
			continue
		}
		best := pick(tiers[t])
		return Resolution{Promo: best.promo, Tier: t, Percent: Clamp(best.percent)}, nil
	}
	return Resolution{Tier: TierNone, Percent: zero}, nil
}

// globalTier returns the most specific tier a global promo matches at. Each
// scoping field is an independent alternative; a promo with none set matches
// nothing.
func globalTier(p *catalog.Promo, game *catalog.Game, q Query) Tier {
	if p.AppliesToProduct(q.ProductID) {
		return TierProduct
	}
	for _, id := range p.ApplicableGames {
		if id == game.ID {
			return TierGame
		}
	}
	for _, c := range p.ApplicableCategories {
		if game.HasCategory(c) {
			return TierCategory
		}
	}
	if p.PaymentMethod != "" && strings.EqualFold(p.PaymentMethod, q.PaymentMethod) {
		return TierPaymentMethod
	}
	return TierNone
}

func (r *Resolver) usable(p *catalog.Promo, now time.Time) bool {
	if p.Malformed() {
		r.lg.Warn("Promo has inverted validity window, excluding",
			zap.String("promo_id", p.ID),
			zap.Time("start_date", p.StartDate),
			zap.Time("end_date", p.EndDate),
		)
		return false
	}
	return p.ActiveAt(now)
}

func (r *Resolver) percent(p *catalog.Promo) decimal.Decimal {
	pct, err := ParseDiscount(p.Discount)
	if err != nil {
		r.lg.Warn("Promo discount is malformed, treating as 0%",
			zap.String("promo_id", p.ID),
			zap.String("discount", p.Discount),
		)
		return zero
	}
	return Clamp(pct)
}

// pick selects the largest discount; ties go to the earliest start date, then
// to the lexicographically lowest id.
func pick(cands []candidate) candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best
}

func better(a, b candidate) bool {
	if cmp := a.percent.Cmp(b.percent); cmp != 0 {
		return cmp > 0
	}
	if !a.promo.StartDate.Equal(b.promo.StartDate) {
		return a.promo.StartDate.Before(b.promo.StartDate)
	}
	return a.promo.ID < b.promo.ID
}
