package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// Snapshot describes a loaded in-memory dataset.
type Snapshot interface {
	Len() (games, products int)
	LoadedAt() time.Time
}

// CatalogCheck fails when the current snapshot is empty or, if maxAge is
// positive, older than maxAge.
func CatalogCheck(current func() Snapshot, maxAge time.Duration, now func() time.Time) CheckFunc {
	if now == nil {
		now = time.Now
	}
	return func(_ context.Context) error {
		s := current()
		if s == nil {
			return errors.New("catalog not loaded")
		}
		if _, products := s.Len(); products == 0 {
			return errors.New("catalog has no products")
		}
		if age := now().Sub(s.LoadedAt()); maxAge > 0 && age > maxAge {
			return errors.Errorf("catalog is stale: loaded %s ago", age.Truncate(time.Second))
		}
		return nil
	}
}
