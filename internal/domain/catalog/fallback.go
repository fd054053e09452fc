package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// Finder looks up single catalog entries in the backing store.
type Finder interface {
	FindProductByID(ctx context.Context, id string) (*Product, error)
	FindGameByID(ctx context.Context, id string) (*Game, error)
}

// WithFinder returns a Source whose stores answer from the snapshot pinned
// from src and consult f only for products and games the snapshot lacks,
// such as entries added after the last refresh.
func WithFinder(src Source, f Finder) Source {
	return finderSource{src: src, f: f}
}

type finderSource struct {
	src Source
	f   Finder
}

func (s finderSource) Current() Store {
	return &finderStore{Store: s.src.Current(), f: s.f}
}

type finderStore struct {
	Store
	f Finder
}

func (s *finderStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := s.Store.GetProduct(ctx, id)
	if errors.Is(err, ErrProductNotFound) {
		return s.f.FindProductByID(ctx, id)
	}
	return p, err
}

func (s *finderStore) GetGame(ctx context.Context, id string) (*Game, error) {
	g, err := s.Store.GetGame(ctx, id)
	if errors.Is(err, ErrGameNotFound) {
		return s.f.FindGameByID(ctx, id)
	}
	return g, err
}

func (s *finderStore) GetProductOwner(ctx context.Context, productID string) (*Game, error) {
	g, err := s.Store.GetProductOwner(ctx, productID)
	if !errors.Is(err, ErrProductNotFound) {
		return g, err
	}
	p, err := s.f.FindProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.GetGame(ctx, p.GameID)
}
