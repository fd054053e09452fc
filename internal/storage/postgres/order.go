package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tifstore/topup-orders/internal/domain/order"
)

const (
	orderNumberConstraint = "orders_order_number_key"

	insertOrderSQL = `INSERT INTO orders (id, order_number, user_id, payment_method, email, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, price, quantity, game_data)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns     = `id, order_number, user_id, payment_method, email, total_amount, status, created_at`
	getOrderByIDSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	listOrderItemSQL = `SELECT id, product_id, price, quantity, game_data FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns
	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateOrderWithItem inserts the order and its item in one transaction. The
// game data is serialized to JSON for the JSONB column.
func (r *OrderRepository) CreateOrderWithItem(ctx context.Context, o *order.Order, item *order.Item) error {
	gameData, err := json.Marshal(item.GameData)
	if err != nil {
		return fmt.Errorf("marshaling game data: %w", err)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.OrderNumber, o.UserID, o.PaymentMethod, o.Email,
			o.TotalAmount, string(o.Status), o.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.Price, item.Quantity, gameData,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, orderNumberConstraint) {
			return order.ErrOrderNumberConflict
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID returns the order with its items. It returns order.ErrNotFound when
// no order matches.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	if o.Items, err = collectRows(ctx, r.pool, listOrderItemSQL, scanOrderItem, id); err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus sets the status only if the stored one still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking order %q: %w", id, err)
		}
		if !exists {
			return nil, order.ErrNotFound
		}
		return nil, order.ErrStaleStatus
	case err != nil:
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}

	if o.Items, err = collectRows(ctx, r.pool, listOrderItemSQL, scanOrderItem, id); err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		status  string
		created time.Time
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.PaymentMethod, &o.Email, &o.TotalAmount, &status, &created)
	o.Status = order.Status(status)
	o.CreatedAt = created.UTC()
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it  order.Item
		raw []byte
	)
	if err := row.Scan(&it.ID, &it.ProductID, &it.Price, &it.Quantity, &raw); err != nil {
		return it, err
	}
	if err := json.Unmarshal(raw, &it.GameData); err != nil {
		return it, fmt.Errorf("unmarshaling game data: %w", err)
	}
	return it, nil
}
