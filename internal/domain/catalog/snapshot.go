package catalog

import (
	"context"
	"slices"
	"sync/atomic"
	"time"
)

// Source hands out the catalog view a single request should use. Callers pin
// the returned Store once and use it for every lookup of that request.
type Source interface {
	Current() Store
}

// Snapshot is an immutable, indexed view of the catalog. It is safe for
// concurrent use.
type Snapshot struct {
	games    map[string]*Game
	owners   map[string]string // product id -> game id
	products map[string]*Product
	global   []Promo
	loadedAt time.Time
}

var (
	_ Store  = (*Snapshot)(nil)
	_ Source = (*Snapshot)(nil)
)

// NewSnapshot indexes games and global promos into a Snapshot. The input is
// copied so later mutation by the caller does not leak into the snapshot.
// Products whose GameID is empty are attributed to the game listing them.
func NewSnapshot(games []Game, global []Promo) *Snapshot {
	s := &Snapshot{
		games:    make(map[string]*Game, len(games)),
		owners:   make(map[string]string),
		products: make(map[string]*Product),
		global:   clonePromos(global),
		loadedAt: time.Now(),
	}
	for _, g := range games {
		game := cloneGame(g)
		for i := range game.Products {
			p := &game.Products[i]
			if p.GameID == "" {
				p.GameID = game.ID
			}
			s.products[p.ID] = p
			s.owners[p.ID] = game.ID
		}
		for i := range game.Promos {
			if game.Promos[i].GameID == "" {
				game.Promos[i].GameID = game.ID
			}
		}
		s.games[game.ID] = game
	}
	return s
}

// Current returns the snapshot itself.
func (s *Snapshot) Current() Store { return s }

// LoadedAt returns the time the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of games and products in the snapshot.
func (s *Snapshot) Len() (games, products int) {
	return len(s.games), len(s.products)
}

// GetProduct returns a copy of the product with the given id.
func (s *Snapshot) GetProduct(_ context.Context, id string) (*Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// GetGame returns a copy of the game with the given id.
func (s *Snapshot) GetGame(_ context.Context, id string) (*Game, error) {
	g, ok := s.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return cloneGame(*g), nil
}

// GetProductOwner returns the game owning productID.
func (s *Snapshot) GetProductOwner(ctx context.Context, productID string) (*Game, error) {
	gameID, ok := s.owners[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	return s.GetGame(ctx, gameID)
}

// GlobalPromos returns the promos not owned by any game.
func (s *Snapshot) GlobalPromos(_ context.Context) ([]Promo, error) {
	return clonePromos(s.global), nil
}

// Holder publishes catalog snapshots to concurrent readers. Swap replaces the
// snapshot atomically; readers that already pinned the previous one keep it.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

var _ Source = (*Holder)(nil)

// NewHolder returns a Holder serving the given snapshot. A nil snapshot is
// replaced by an empty one.
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	if s == nil {
		s = NewSnapshot(nil, nil)
	}
	h.current.Store(s)
	return h
}

// Current returns the most recently published snapshot.
func (h *Holder) Current() Store {
	return h.current.Load()
}

// Snapshot returns the most recently published snapshot.
func (h *Holder) Snapshot() *Snapshot {
	return h.current.Load()
}

// Swap publishes s and returns the snapshot it replaced.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	return h.current.Swap(s)
}

func cloneGame(g Game) *Game {
	cp := g
	cp.Categories = slices.Clone(g.Categories)
	cp.Products = make([]Product, len(g.Products))
	for i, p := range g.Products {
		cp.Products[i] = cloneProduct(p)
	}
	cp.Promos = clonePromos(g.Promos)
	return &cp
}

func cloneProduct(p Product) Product {
	p.Tags = slices.Clone(p.Tags)
	p.Benefits = slices.Clone(p.Benefits)
	return p
}

func clonePromos(src []Promo) []Promo {
	if src == nil {
		return nil
	}
	dst := make([]Promo, len(src))
	for i, p := range src {
		p.ApplicableProducts = slices.Clone(p.ApplicableProducts)
		p.ApplicableGames = slices.Clone(p.ApplicableGames)
		p.ApplicableCategories = slices.Clone(p.ApplicableCategories)
		dst[i] = p
	}
	return dst
}
