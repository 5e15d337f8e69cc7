package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/config"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/engine"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/show"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/ticket"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/postgres"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/queue"
	redisx "github.com/ghostwalkerj/champagneroom-app-sub000/internal/redis"
	postgresrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	redisrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/redis"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service"
	httpgin "github.com/ghostwalkerj/champagneroom-app-sub000/internal/transport/http/gin"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/uow"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	engine     *engine.Engine
	feed       *redisx.StatePubSub
	publisher  *queue.Publisher
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	publisher, err := queue.NewPublisher(queue.Config{URL: cfg.AMQP.URL})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize effect queue: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	feed := redisx.NewStatePubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.PrefixRateLimit("reserve"), 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Initialize the lifecycle engine
	eng := engine.New(logger, store, uow.NewUoW(store), publisher, feed, cache, engine.Config{
		Show: show.Config{
			GracePeriod:       cfg.Lifecycle.GracePeriod,
			EscrowPeriod:      cfg.Lifecycle.EscrowPeriod,
			TakeHomePercent:   cfg.Lifecycle.TakeHomePercent,
			CommissionPercent: cfg.Lifecycle.CommissionPercent,
		},
		Ticket: ticket.Config{
			ReservationTTL: cfg.Lifecycle.ReservationTTL,
			EscrowPeriod:   cfg.Lifecycle.EscrowPeriod,
		},
	})

	// Initialize services
	services := service.NewServices(logger, eng, store, cache, idempotencyStore, limiter, service.Config{})

	// Initialize Gin router
	router := httpgin.NewRouter(services, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		engine:    eng,
		feed:      feed,
		publisher: publisher,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Rehydrate actors and re-arm timers before accepting traffic
	if err := a.engine.Start(gCtx); err != nil {
		return fmt.Errorf("failed to start lifecycle engine: %w", err)
	}

	// Change-feed consumer
	g.Go(func() error {
		err := a.feed.Subscribe(gCtx, a.engine.HandleStateChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("change feed subscription failed: %w", err)
		}
		return nil
	})

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := a.httpServer.Shutdown(ctx)

		a.engine.Stop()
		_ = a.publisher.Close()

		return err
	})

	return g.Wait()
}
