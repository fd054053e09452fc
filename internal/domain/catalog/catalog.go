// Package catalog holds the read-only game, product and promo data consulted
// during order pricing.
package catalog

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrProductNotFound is returned when a product id does not resolve.
	ErrProductNotFound = errors.New("product not found")
	// ErrGameNotFound is returned when a game id does not resolve.
	ErrGameNotFound = errors.New("game not found")
)

// Product is a purchasable top-up package. Price is expressed in the smallest
// currency unit. OriginalPrice and Discount are display-only.
type Product struct {
	ID            string
	Name          string
	Price         int64
	OriginalPrice int64
	Discount      string
	Tags          []string
	Category      string
	GameID        string
	Duration      string
	Benefits      []string
}

// Game owns a set of products and the promos scoped to it.
type Game struct {
	ID         string
	Name       string
	Categories []string
	Products   []Product
	Promos     []Promo
}

// HasCategory reports whether the game is a member of category.
func (g *Game) HasCategory(category string) bool {
	return slices.Contains(g.Categories, category)
}

// Promo is a time-bounded discount rule. Discount is a percentage string such
// as "10%". GameID is set for promos owned by a game and empty for global
// promos.
type Promo struct {
	ID                   string
	Name                 string
	Discount             string
	StartDate            time.Time
	EndDate              time.Time
	GameID               string
	ApplicableProducts   []string
	ApplicableGames      []string
	ApplicableCategories []string
	PaymentMethod        string
}

// ActiveAt reports whether t falls inside the promo's inclusive validity
// window. A promo whose start is after its end is never active.
func (p *Promo) ActiveAt(t time.Time) bool {
	if p.Malformed() {
		return false
	}
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// Malformed reports whether the validity window is inverted.
func (p *Promo) Malformed() bool {
	return p.StartDate.After(p.EndDate)
}

// AppliesToProduct reports whether the promo lists productID explicitly.
func (p *Promo) AppliesToProduct(productID string) bool {
	return slices.Contains(p.ApplicableProducts, productID)
}

// Store answers catalog lookups. Implementations must treat the underlying
// data as immutable for the duration of a request.
type Store interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetGame(ctx context.Context, id string) (*Game, error)
	GetProductOwner(ctx context.Context, productID string) (*Game, error)
	GlobalPromos(ctx context.Context) ([]Promo, error)
}
