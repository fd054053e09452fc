// Package notification delivers user notifications on a best-effort basis.
package notification

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Type classifies a notification.
type Type string

const (
	TypeOrder  Type = "ORDER"
	TypeSystem Type = "SYSTEM"
)

// Notification is a message addressed to a user.
type Notification struct {
	ID        string
	UserID    string
	Type      Type
	Title     string
	Message   string
	IsRead    bool
	Data      map[string]string
	CreatedAt time.Time
}

// Repository stores notifications. Create must be idempotent on
// Notification.ID so redelivery never produces duplicates.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
}

// Fanout delivers each notification to every repository in order. All
// repositories are attempted; their errors are combined.
type Fanout []Repository

var _ Repository = Fanout(nil)

// Create implements Repository.
func (f Fanout) Create(ctx context.Context, n *Notification) error {
	var err error
	for _, r := range f {
		err = multierr.Append(err, r.Create(ctx, n))
	}
	return err
}
