package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tifstore/topup-orders/internal/domain/auth"
	"github.com/tifstore/topup-orders/internal/domain/order"
)

// CreateOrder handles POST /api/orders. The order owner is the user bound to
// the caller's API key.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body too large or unreadable")
		return
	}
	req, err := decodeCreateOrder(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	req.UserID = caller.UserID

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeOrder(o))
}

// GetOrder handles GET /api/orders/{id}. Orders of other users are reported
// as not found.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFromContext(r.Context())

	o, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if o.UserID != caller.UserID {
		h.fail(w, r, order.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrder(o))
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body too large or unreadable")
		return
	}
	status, err := decodeStatusUpdate(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrder(o))
}

// QuotePrice handles GET /api/products/{id}/price?paymentMethod=.
func (h *Handler) QuotePrice(w http.ResponseWriter, r *http.Request) {
	p, q, err := h.orders.Quote(r.Context(), r.PathValue("id"), r.URL.Query().Get("paymentMethod"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeQuote(p, q))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapOrderError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeError(w, status, code, msg)
}
