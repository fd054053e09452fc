package order

import (
	"context"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusSuccess, StatusFailed},
	StatusSuccess:    {StatusRefunded},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether the status machine allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is a customer purchase. TotalAmount is the sum of item price times
// quantity, in the smallest currency unit.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	PaymentMethod string
	Email         string
	TotalAmount   int64
	Status        Status
	CreatedAt     time.Time
	Items         []Item
}

// Item is an order line. Price is the charged unit price after promo
// resolution.
type Item struct {
	ID        string
	ProductID string
	Price     int64
	Quantity  int
	GameData  GameData
}

// GameData captures the in-game account the top-up is delivered to, with
// denormalized names for support and display.
type GameData struct {
	UserID      string `json:"userId"`
	ServerID    string `json:"serverId,omitempty"`
	GameName    string `json:"gameName"`
	ProductName string `json:"productName"`
}

// Total returns the sum of price times quantity over items.
func Total(items []Item) int64 {
	var sum int64
	for _, it := range items {
		sum += it.Price * int64(it.Quantity)
	}
	return sum
}

// Repository defines persistence operations for orders.
type Repository interface {
	// CreateOrderWithItem stores the order and its item atomically. It returns
	// ErrOrderNumberConflict when the order number is already taken.
	CreateOrderWithItem(ctx context.Context, o *Order, item *Item) error
	// GetByID returns the order with its items, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order from one status to another. It returns
	// ErrStaleStatus when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}
