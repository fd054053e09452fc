// Package order places and tracks top-up orders.
package order

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
	"github.com/tifstore/topup-orders/internal/domain/notification"
	"github.com/tifstore/topup-orders/internal/domain/pricing"
	"github.com/tifstore/topup-orders/internal/domain/promo"
)

// maxNumberAttempts bounds order-number regeneration on conflict.
const maxNumberAttempts = 5

// Notifier delivers notifications without failing the caller. It reports
// whether the first delivery attempt succeeded.
type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) bool
}

// CreateOrderRequest holds the input for placing an order. UserID is the
// authenticated owner; GameUserID and ServerID identify the in-game account.
type CreateOrderRequest struct {
	UserID        string `json:"ownerId" validate:"required"`
	ProductID     string `json:"productId" validate:"required"`
	GameUserID    string `json:"userId" validate:"required,max=64"`
	ServerID      string `json:"serverId" validate:"max=64"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
}

// Options holds non-dependency configuration for the Service.
type Options struct {
	// PaymentMethods is the allow-list of payment methods. Empty allows any.
	PaymentMethods []string
	IDs            IDGenerator
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.IDs == nil {
		o.IDs = NewRandomGenerator()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
}

// Service encapsulates order placement business logic.
type Service struct {
	catalog  catalog.Source
	resolver *promo.Resolver
	orders   Repository
	notifier Notifier

	ids      IDGenerator
	methods  map[string]struct{}
	validate *validator.Validate
	lg       *zap.Logger
	now      func() time.Time

	tracer         trace.Tracer
	ordersCreated  metric.Int64Counter
	notifyFailures metric.Int64Counter
	numberRetries  metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	src catalog.Source,
	resolver *promo.Resolver,
	orders Repository,
	notifier Notifier,
	opts Options,
) (*Service, error) {
	opts.setDefaults()

	s := &Service{
		catalog:  src,
		resolver: resolver,
		orders:   orders,
		notifier: notifier,
		ids:      opts.IDs,
		validate: newValidator(),
		lg:       opts.Logger,
		now:      time.Now,
		tracer:   opts.TracerProvider.Tracer("github.com/tifstore/topup-orders/internal/domain/order"),
	}
	if len(opts.PaymentMethods) > 0 {
		s.methods = make(map[string]struct{}, len(opts.PaymentMethods))
		for _, m := range opts.PaymentMethods {
			s.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}

	meter := opts.MeterProvider.Meter("github.com/tifstore/topup-orders/internal/domain/order")
	var err error
	if s.ordersCreated, err = meter.Int64Counter("topup.orders.created",
		metric.WithDescription("Orders created, by resolved promo tier"),
	); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if s.notifyFailures, err = meter.Int64Counter("topup.orders.notification_failures",
		metric.WithDescription("Order notifications whose first delivery attempt failed"),
	); err != nil {
		return nil, errors.Wrap(err, "notification failures counter")
	}
	if s.numberRetries, err = meter.Int64Counter("topup.orders.number_conflicts",
		metric.WithDescription("Order number collisions detected at persistence time"),
	); err != nil {
		return nil, errors.Wrap(err, "number conflicts counter")
	}
	return s, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func (s *Service) checkRequest(req *CreateOrderRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InvalidRequestError{Field: fe.Field(), Reason: fe.Tag()}
		}
		return errors.Wrap(err, "validate request")
	}
	if s.methods != nil {
		if _, ok := s.methods[strings.ToUpper(req.PaymentMethod)]; !ok {
			return errors.Wrapf(ErrInvalidPaymentMethod, "%q", req.PaymentMethod)
		}
	}
	return nil
}

// Quote prices a product for a payment method at the current time without
// creating an order.
func (s *Service) Quote(ctx context.Context, productID, paymentMethod string) (*catalog.Product, pricing.Quote, error) {
	store := s.catalog.Current()
	p, err := s.product(ctx, store, productID)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	res, err := s.resolver.Resolve(ctx, store, promo.Query{
		ProductID:     productID,
		PaymentMethod: paymentMethod,
		Now:           s.now(),
	})
	if err != nil {
		return nil, pricing.Quote{}, errors.Wrap(err, "resolve promo")
	}
	return p, pricing.Price(p, res), nil
}

// CreateOrder prices the product under the best active promo, persists the
// order with its single item, and notifies the owner. The notification is
// best-effort; the persisted order is returned even if it fails.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(
			attribute.String("product.id", req.ProductID),
			attribute.String("payment.method", req.PaymentMethod),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := s.checkRequest(&req); err != nil {
		return nil, err
	}

	// One catalog view and one instant for the whole operation.
	store := s.catalog.Current()
	now := s.now()

	p, err := s.product(ctx, store, req.ProductID)
	if err != nil {
		return nil, err
	}
	game, err := store.GetProductOwner(ctx, req.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product owner")
	}

	res, err := s.resolver.Resolve(ctx, store, promo.Query{
		ProductID:     req.ProductID,
		PaymentMethod: req.PaymentMethod,
		Now:           now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolve promo")
	}
	quote := pricing.Price(p, res)
	span.SetAttributes(attribute.String("promo.tier", res.Tier.String()))

	item := &Item{
		ID:        s.ids.NewID(),
		ProductID: p.ID,
		Price:     quote.Charged,
		Quantity:  1,
		GameData: GameData{
			UserID:      req.GameUserID,
			ServerID:    req.ServerID,
			GameName:    game.Name,
			ProductName: p.Name,
		},
	}
	o := &Order{
		ID:            s.ids.NewID(),
		UserID:        req.UserID,
		PaymentMethod: req.PaymentMethod,
		Email:         req.Email,
		Status:        StatusPending,
		CreatedAt:     now.UTC(),
	}
	o.TotalAmount = Total([]Item{*item})

	if err := s.persist(ctx, o, item); err != nil {
		return nil, err
	}
	o.Items = []Item{*item}

	s.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("promo.tier", res.Tier.String())))
	s.notify(ctx, o, p)

	lg := s.lg.With(
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
	)
	if res.Found() {
		lg = lg.With(zap.String("promo_id", res.Promo.ID), zap.Stringer("promo_tier", res.Tier))
	}
	lg.Info("Order created",
		zap.String("product_id", p.ID),
		zap.Int64("list_price", quote.ListPrice),
		zap.Int64("charged", quote.Charged),
	)
	return o, nil
}

func (s *Service) product(ctx context.Context, store catalog.Store, id string) (*catalog.Product, error) {
	p, err := store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	return p, nil
}

// persist stores the order, regenerating the order number on conflict.
func (s *Service) persist(ctx context.Context, o *Order, item *Item) error {
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		o.OrderNumber = s.ids.NewOrderNumber()

		err := s.orders.CreateOrderWithItem(ctx, o, item)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrOrderNumberConflict) {
			return &PersistenceError{Err: err}
		}
		s.numberRetries.Add(ctx, 1)
		s.lg.Warn("Order number collision, regenerating",
			zap.String("order_number", o.OrderNumber),
			zap.Int("attempt", attempt),
		)
	}
	return &PersistenceError{Err: errors.Wrapf(ErrOrderNumberConflict, "after %d attempts", maxNumberAttempts)}
}

func (s *Service) notify(ctx context.Context, o *Order, p *catalog.Product) {
	n := &notification.Notification{
		ID:     s.ids.NewID(),
		UserID: o.UserID,
		Type:   notification.TypeOrder,
		Title:  "Order Created",
		Message: fmt.Sprintf("Your order %s for %s has been created and is awaiting payment.",
			o.OrderNumber, p.Name),
		Data: map[string]string{
			"orderId":     o.ID,
			"orderNumber": o.OrderNumber,
		},
		CreatedAt: o.CreatedAt,
	}
	if !s.notifier.Notify(ctx, n) {
		s.notifyFailures.Add(ctx, 1)
	}
}

// GetOrder returns the order with the given id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// UpdateStatus applies a lifecycle transition driven by a payment callback or
// admin action.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, &InvalidRequestError{Field: "status", Reason: "unknown status " + string(to)}
	}
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(to) {
		return nil, &TransitionError{From: o.Status, To: to}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, o.Status, to)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Err: err}
	}

	s.lg.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}
