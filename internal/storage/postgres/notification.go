package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tifstore/topup-orders/internal/domain/notification"
)

const insertNotificationSQL = `INSERT INTO notifications (id, user_id, type, title, message, is_read, data, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

var _ notification.Repository = (*NotificationRepository)(nil)

// NotificationRepository stores notifications in PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create inserts n. Inserting an id that already exists is a no-op.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshaling notification data: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertNotificationSQL,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.IsRead, data, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating notification %q: %w", n.ID, err)
	}
	return nil
}
