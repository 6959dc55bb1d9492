package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockroom/internal/cache"
	"stockroom/internal/config"
	"stockroom/internal/database"
	"stockroom/internal/events"
	"stockroom/internal/handlers"
	"stockroom/internal/middleware"
	"stockroom/internal/repositories"
	"stockroom/internal/services"
	"stockroom/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// listingCache is a listing snapshot store that can also be invalidated.
type listingCache interface {
	services.ListingCache
	events.Invalidator
}

type server struct {
	app        *fiber.App
	db         *gorm.DB
	products   *services.ProductService
	instanceID string
	logger     *zap.Logger

	// closers run in reverse order on shutdown.
	closers []func() error
}

// newServer wires the store, listing cache, invalidation sinks, services and
// HTTP routes from cfg. Optional backends (Redis, RabbitMQ, Kafka) are only
// connected when configured.
func newServer(cfg *config.Config, logger *zap.Logger) (_ *server, err error) {
	instanceID := cfg.App.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	s := &server{instanceID: instanceID, logger: logger.With(zap.String("instance_id", instanceID))}
	defer func() {
		if err != nil {
			_ = s.close()
		}
	}()

	// --- Store ---
	s.db, err = database.Open(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.App.Env == "development" && cfg.Log.Level == "debug",
	}, s.logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { return database.Close(s.db) })
	if err := database.Migrate(s.db); err != nil {
		return nil, err
	}
	productRepo := repositories.NewGORMProductRepository(s.db)

	// --- Listing cache ---
	var snapshots listingCache
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		snapshots = cache.NewRedisListingCache(client, cfg.Redis.ListingTTL, s.logger)
		s.logger.Info("Listing cache backed by Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		snapshots = cache.NewMemoryListingCache(cfg.Redis.ListingTTL)
	}

	// --- Invalidation sinks ---
	sinks := []events.Invalidator{snapshots}
	if cfg.RabbitMQ.URL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Exchange: cfg.RabbitMQ.Exchange}, s.logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, mqClient.Close)
		notifier := events.NewRabbitMQNotifier(mqClient, instanceID, s.logger)
		if err := notifier.Subscribe(snapshots); err != nil {
			return nil, fmt.Errorf("failed to subscribe to listing events: %w", err)
		}
		sinks = append(sinks, notifier)
	}
	if cfg.Kafka.Brokers != "" {
		writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, s.logger)
		notifier := events.NewKafkaNotifier(writer, instanceID, s.logger)
		s.closers = append(s.closers, notifier.Close)
		sinks = append(sinks, notifier)
	}

	// --- Services ---
	s.products = services.NewProductService(productRepo, events.NewFanout(sinks...), s.logger)
	listingService := services.NewListingService(productRepo, snapshots, s.logger)

	// --- HTTP ---
	s.app = fiber.New(fiber.Config{AppName: "stockroom"})
	s.app.Use(recover.New())
	s.app.Use(fiberlogger.New())

	apiV1 := s.app.Group("/api/v1")

	guard := fiber.Handler(middleware.Passthrough)
	if cfg.Auth.Enabled {
		authService, err := services.NewAuthService(services.OperatorCredentials{
			Username:     cfg.Auth.OperatorUsername,
			Password:     cfg.Auth.OperatorPassword,
			PasswordHash: cfg.Auth.PasswordHash,
		}, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
		handlers.NewAuthHandler(authService, s.logger).RegisterRoutes(apiV1)
		guard = middleware.AuthRequired(authService, s.logger)
	}
	handlers.NewProductHandler(s.products, listingService, s.logger).RegisterRoutes(apiV1, guard)

	s.app.Get("/health", s.handleHealth)

	s.logger.Info("Server wired",
		zap.Int("invalidation_sinks", len(sinks)),
		zap.Bool("auth_enabled", cfg.Auth.Enabled))
	return s, nil
}

func (s *server) handleHealth(c *fiber.Ctx) error {
	status, dbState := fiber.StatusOK, "connected"
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		status, dbState = fiber.StatusServiceUnavailable, "unreachable"
	}
	health := "healthy"
	if status != fiber.StatusOK {
		health = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   health,
		"time":     time.Now().Format(time.RFC3339),
		"database": dbState,
		"instance": s.instanceID,
	})
}

// run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *server) run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("addr", addr))
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Error("Error during Fiber shutdown", zap.Error(err))
	}
	s.logger.Info("Server gracefully stopped")
	return nil
}

// close releases every backend connection, newest first.
func (s *server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
