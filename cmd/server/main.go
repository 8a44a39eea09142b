package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/apps"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/apps/nitip"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/database"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/events"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/logging"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/routes"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/services"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout, sensitive attrs masked)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Counter registry
	registry, err := tenant.LoadFromFile(cfg.AppsConfigPath)
	if err != nil {
		slog.Error("failed to load app registry", "path", cfg.AppsConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("app registry loaded", "apps", len(registry.All()))

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.MigrateShared(); err != nil {
		slog.Error("shared migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch), behind the same redaction
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewRedactingHandler(logging.NewMultiHandler(
		logging.JSONHandler(os.Stdout),
		pgLogHandler,
	))))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, logging.DefaultRetention, cleanupDone)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promRegistry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Change events between instances
	var broker events.Broker = events.NewLocalBroker()
	if len(cfg.KafkaBrokers) > 0 {
		kb, err := events.NewKafkaBroker(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		if err != nil {
			slog.Error("kafka broker setup failed", "error", err)
			os.Exit(1)
		}
		broker = kb
		slog.Info("deposit events via kafka", "topic", cfg.KafkaTopic, "brokers", len(cfg.KafkaBrokers))
	}

	// Photo uploads
	var photos nitip.PhotoSigner
	if cfg.ImageHostEnabled() {
		host, err := services.NewImageHost(ctx, cfg)
		if err != nil {
			slog.Error("image host setup failed", "error", err)
			os.Exit(1)
		}
		photos = host
	} else {
		slog.Warn("photo uploads disabled: S3 credentials not set")
	}

	// Services
	gate := session.NewGate(session.NewGormProfileStore(database.DB), cfg)
	authService := services.NewAuthService(database.DB, cfg, gate)
	depositService := nitip.NewService(nitip.Options{
		Store:           nitip.NewStore(cfg, database.DB),
		Publisher:       broker,
		Metrics:         collector,
		MaxCodeAttempts: cfg.CodeMaxAttempts,
	})
	slog.Info("deposit store ready", "store", cfg.DepositStore)

	plugins := []apps.Plugin{
		nitip.New(depositService, registry, photos, broker),
	}

	// Migrate plugin models
	for _, p := range plugins {
		if models := p.Models(); len(models) > 0 {
			if err := database.MigrateModels(models); err != nil {
				slog.Error("plugin migration failed", "plugin", p.ID(), "error", err)
				os.Exit(1)
			}
			slog.Info("plugin migrated", "plugin", p.ID(), "models", len(models))
		}
	}

	// Background work
	for _, p := range plugins {
		if r, ok := p.(apps.Runner); ok {
			go func(id string, r apps.Runner) {
				if err := r.Run(ctx); err != nil {
					slog.Error("plugin runner stopped", "plugin", id, "error", err)
				}
			}(p.ID(), r)
		}
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler(registry, database.Ping)
	roleHandler := handlers.NewRoleHandler(gate)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})
	app.Use(middleware.TenantMiddleware(registry))

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(promRegistry)))

	routes.Setup(app, cfg, gate, authHandler, healthHandler, roleHandler, plugins)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	// Close feeds first so open event streams end and Shutdown can drain.
	for _, p := range plugins {
		if r, ok := p.(apps.Runner); ok {
			if err := r.Close(); err != nil {
				slog.Error("plugin close error", "plugin", p.ID(), "error", err)
			}
		}
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Something went wrong, please try again"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
