// Package handler exposes the order service over HTTP with JSON bodies.
package handler

import (
	"context"
	"net/http"

	"github.com/tifstore/topup-orders/internal/domain/auth"
	"github.com/tifstore/topup-orders/internal/domain/catalog"
	"github.com/tifstore/topup-orders/internal/domain/order"
	"github.com/tifstore/topup-orders/internal/domain/pricing"
)

// OrderService is the order use-case surface the handler depends on.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
	Quote(ctx context.Context, productID, paymentMethod string) (*catalog.Product, pricing.Quote, error)
}

var _ OrderService = (*order.Service)(nil)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Handler serves the /api routes.
type Handler struct {
	orders   OrderService
	security *SecurityHandler
}

// NewHandler constructs a Handler. Every route is authenticated by security.
func NewHandler(orders OrderService, security *SecurityHandler) *Handler {
	return &Handler{
		orders:   orders,
		security: security,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/orders", h.security.Require(auth.ScopeCreateOrder, h.CreateOrder))
	mux.Handle("GET /api/orders/{id}", h.security.Require(auth.ScopeReadOrder, h.GetOrder))
	mux.Handle("PATCH /api/orders/{id}/status", h.security.Require(auth.ScopeUpdateStatus, h.UpdateOrderStatus))
	mux.Handle("GET /api/products/{id}/price", h.security.Require(auth.ScopeCreateOrder, h.QuotePrice))
}
