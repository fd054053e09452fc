package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Loader builds a fresh snapshot from the catalog's system of record.
type Loader interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// Refresh loads a snapshot and publishes it into h.
func Refresh(ctx context.Context, h *Holder, l Loader) (*Snapshot, error) {
	s, err := l.LoadSnapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog snapshot")
	}
	h.Swap(s)
	return s, nil
}

// RunRefresher reloads the catalog every interval until ctx is cancelled.
// A failed reload keeps the previous snapshot in service.
func RunRefresher(ctx context.Context, lg *zap.Logger, h *Holder, l Loader, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s, err := Refresh(ctx, h, l)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Warn("Catalog refresh failed, keeping previous snapshot", zap.Error(err))
				continue
			}
			games, products := s.Len()
			lg.Debug("Catalog refreshed",
				zap.Int("games", games),
				zap.Int("products", products),
			)
		}
	}
}
