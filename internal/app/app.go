// Package app wires configuration, storage, domain services and the HTTP
// server into a runnable process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
	"github.com/tifstore/topup-orders/internal/domain/notification"
	"github.com/tifstore/topup-orders/internal/domain/order"
	"github.com/tifstore/topup-orders/internal/domain/promo"
	"github.com/tifstore/topup-orders/internal/handler"
	"github.com/tifstore/topup-orders/internal/messaging"
	"github.com/tifstore/topup-orders/internal/storage/file"
	"github.com/tifstore/topup-orders/internal/storage/postgres"
	"github.com/tifstore/topup-orders/pkg/health"
	"github.com/tifstore/topup-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Catalog snapshot. Startup fails if the first load does. A database
	// catalog also answers point lookups for entries newer than the snapshot.
	catalogRepo := postgres.NewCatalogRepository(pool)
	var loader catalog.Loader = catalogRepo
	holder := catalog.NewHolder(nil)
	var source catalog.Source = catalog.WithFinder(holder, catalogRepo)
	if cfg.Catalog.File != "" {
		loader = file.NewCatalogLoader(cfg.Catalog.File)
		source = holder
	}
	snap, err := catalog.Refresh(ctx, holder, loader)
	if err != nil {
		return errors.Wrap(err, "initial catalog load")
	}
	games, products := snap.Len()
	lg.Info("Catalog loaded",
		zap.Int("games", games),
		zap.Int("products", products),
		zap.Bool("from_file", cfg.Catalog.File != ""),
	)

	// Notification sinks.
	sinks := notification.Fanout{postgres.NewNotificationRepository(pool)}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := messaging.NewPublisher(
			messaging.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			cfg.Kafka.Topic,
			messaging.PublisherOptions{TracerProvider: m.TracerProvider()},
		)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		sinks = append(sinks, publisher)
		lg.Info("Publishing notifications to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	dispatcher := notification.NewDispatcher(sinks, lg.Named("notification"), notification.DispatcherConfig{
		QueueSize:   cfg.Notification.QueueSize,
		MaxAttempts: cfg.Notification.MaxAttempts,
		Backoff:     cfg.Notification.Backoff,
	})

	// Domain services.
	orderService, err := order.NewService(
		source,
		promo.NewResolver(lg.Named("promo")),
		postgres.NewOrderRepository(pool),
		dispatcher,
		order.Options{
			PaymentMethods: cfg.PaymentMethods,
			Logger:         lg.Named("order"),
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
		},
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", health.PingCheck(pool), health.CheckOptions{Timeout: 5 * time.Second})
	healthSvc.AddReadinessCheck("catalog", health.CatalogCheck(func() health.Snapshot {
		if s := holder.Snapshot(); s != nil {
			return s
		}
		return nil
	}, cfg.Catalog.MaxAge, nil), health.CheckOptions{FailureThreshold: 1})
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(10000), health.CheckOptions{})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	security := handler.NewSecurityHandler(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(orderService, security).Register(mux)

	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("topup-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.KeyByHeader(handler.APIKeyHeader),
			}),
		),
	}

	// Retries must outlive the server so requests still draining can enqueue.
	// Shutdown drains them before this context is cancelled.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		return catalog.RunRefresher(gctx, lg.Named("catalog"), holder, loader, cfg.Catalog.RefreshInterval)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		defer stopDispatch()

		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			lg.Error("Notification drain incomplete", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
