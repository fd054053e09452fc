package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
)

const (
	gameColumns    = `id, name, categories`
	productColumns = `id, game_id, name, price, original_price, discount, tags, category, duration, benefits`
	promoColumns   = `id, name, discount, start_date, end_date, COALESCE(game_id, ''),
		applicable_products, applicable_games, applicable_categories, payment_method`

	listGamesSQL    = `SELECT ` + gameColumns + ` FROM games ORDER BY sort_order, id`
	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY game_id, sort_order, id`
	listPromosSQL   = `SELECT ` + promoColumns + ` FROM promos ORDER BY id`

	getGameByIDSQL      = `SELECT ` + gameColumns + ` FROM games WHERE id = $1`
	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	listGameProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE game_id = $1 ORDER BY sort_order, id`
	listGamePromosSQL   = `SELECT ` + promoColumns + ` FROM promos WHERE game_id = $1 ORDER BY id`
)

var (
	_ catalog.Loader = (*CatalogRepository)(nil)
	_ catalog.Finder = (*CatalogRepository)(nil)
)

// CatalogRepository reads games, products and promos from PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// LoadSnapshot reads the whole catalog and indexes it into a snapshot. The
// three tables are read concurrently.
func (r *CatalogRepository) LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	var (
		games    []catalog.Game
		products []catalog.Product
		promos   []catalog.Promo
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		games, err = collectRows(ctx, r.pool, listGamesSQL, scanGame)
		if err != nil {
			return errors.Wrap(err, "list games")
		}
		return nil
	})
	g.Go(func() (err error) {
		products, err = collectRows(ctx, r.pool, listProductsSQL, scanProduct)
		if err != nil {
			return errors.Wrap(err, "list products")
		}
		return nil
	})
	g.Go(func() (err error) {
		promos, err = collectRows(ctx, r.pool, listPromosSQL, scanPromo)
		if err != nil {
			return errors.Wrap(err, "list promos")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byGame := make(map[string]int, len(games))
	for i := range games {
		byGame[games[i].ID] = i
	}
	for _, p := range products {
		if i, ok := byGame[p.GameID]; ok {
			games[i].Products = append(games[i].Products, p)
		}
	}
	var global []catalog.Promo
	for _, p := range promos {
		if p.GameID == "" {
			global = append(global, p)
			continue
		}
		if i, ok := byGame[p.GameID]; ok {
			games[i].Promos = append(games[i].Promos, p)
		}
	}

	return catalog.NewSnapshot(games, global), nil
}

// FindProductByID returns a single product. It returns
// catalog.ErrProductNotFound when no product matches.
func (r *CatalogRepository) FindProductByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// FindGameByID returns a game with its products and owned promos. It returns
// catalog.ErrGameNotFound when no game matches.
func (r *CatalogRepository) FindGameByID(ctx context.Context, id string) (*catalog.Game, error) {
	rows, err := r.pool.Query(ctx, getGameByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting game %q: %w", id, err)
	}
	game, err := pgx.CollectExactlyOneRow(rows, scanGame)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrGameNotFound
		}
		return nil, fmt.Errorf("getting game %q: %w", id, err)
	}

	if game.Products, err = collectRows(ctx, r.pool, listGameProductsSQL, scanProduct, id); err != nil {
		return nil, fmt.Errorf("listing products of game %q: %w", id, err)
	}
	if game.Promos, err = collectRows(ctx, r.pool, listGamePromosSQL, scanPromo, id); err != nil {
		return nil, fmt.Errorf("listing promos of game %q: %w", id, err)
	}
	return &game, nil
}

func collectRows[T any](ctx context.Context, pool *pgxpool.Pool, sql string, fn pgx.RowToFunc[T], args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, fn)
}

func scanGame(row pgx.CollectableRow) (catalog.Game, error) {
	var g catalog.Game
	err := row.Scan(&g.ID, &g.Name, &g.Categories)
	return g, err
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.GameID, &p.Name, &p.Price, &p.OriginalPrice, &p.Discount,
		&p.Tags, &p.Category, &p.Duration, &p.Benefits,
	)
	return p, err
}

func scanPromo(row pgx.CollectableRow) (catalog.Promo, error) {
	var (
		p          catalog.Promo
		start, end time.Time
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Discount, &start, &end, &p.GameID,
		&p.ApplicableProducts, &p.ApplicableGames, &p.ApplicableCategories, &p.PaymentMethod,
	)
	p.StartDate = start.UTC()
	p.EndDate = end.UTC()
	return p, err
}
