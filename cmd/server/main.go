package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/database"
	"github.com/8by8-org/challenge-api/internal/handlers"
	"github.com/8by8-org/challenge-api/internal/jobs"
	"github.com/8by8-org/challenge-api/internal/logging"
	"github.com/8by8-org/challenge-api/internal/middleware"
	"github.com/8by8-org/challenge-api/internal/realtime"
	"github.com/8by8-org/challenge-api/internal/repository"
	"github.com/8by8-org/challenge-api/internal/routes"
	"github.com/8by8-org/challenge-api/internal/services"
)

func main() {
	// Local development reads a .env file; deployments set the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg := config.Load()
	logger := logging.Setup(cfg.IsProduction())

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	// Storage
	var (
		store        repository.Store
		db           *gorm.DB
		pgLogHandler *logging.PGHandler
	)
	switch cfg.StorageDriver {
	case "memory":
		slog.Warn("using in-memory storage; data is lost on restart")
		store = repository.NewMemoryStore()
	case "postgres":
		if cfg.DBPassword == "" {
			slog.Error("DB_PASSWORD environment variable is required")
			os.Exit(1)
		}
		var err error
		if db, err = database.Connect(cfg); err != nil {
			slog.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		if err := database.Migrate(db); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		store = repository.NewGormStore(db)

		// PostgreSQL log handler (ERROR+ async batch)
		pgLogHandler = logging.NewPGHandler(db)
		logger = slog.New(logging.NewMultiHandler(logger.Handler(), pgLogHandler))
		slog.SetDefault(logger)
	default:
		slog.Error("unknown STORAGE_DRIVER", "driver", cfg.StorageDriver)
		os.Exit(1)
	}

	// Services
	hub := realtime.NewHub(logger)
	otpService := services.NewOTPService(store, services.NewLogMailer(logger), cfg)
	authService := services.NewAuthService(store, cfg, services.NewTurnstileVerifier(cfg), otpService)
	challengeService := services.NewChallengeService(store, hub)

	// Maintenance jobs
	tasks := []jobs.Task{jobs.OTPPurge(otpService, 15*time.Minute)}
	if db != nil {
		tasks = append(tasks, jobs.LogRetention(db, cfg.LogRetention, 24*time.Hour))
	}
	scheduler, err := jobs.New(logger, tasks...)
	if err != nil {
		slog.Error("scheduler setup failed", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
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
		BodyLimit:    64 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	routes.Setup(app, cfg, routes.Handlers{
		Auth:      handlers.NewAuthHandler(authService, cfg),
		Challenge: handlers.NewChallengeHandler(challengeService),
		Session:   handlers.NewSessionHandler(challengeService, cfg),
		Invite:    handlers.NewInviteHandler(challengeService, cfg),
		Health:    handlers.NewHealthHandler(store),
		Realtime:  handlers.NewRealtimeHandler(hub),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "storage", cfg.StorageDriver)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		slog.Error("scheduler shutdown error", "error", err)
	}
	if pgLogHandler != nil {
		pgLogHandler.Stop()
	}
	sentry.Flush(2 * time.Second)

	if db != nil {
		if err := database.Close(db); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
