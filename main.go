package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lanos_go/config"
	"lanos_go/controllers"
	"lanos_go/database"
	"lanos_go/forms"
	"lanos_go/middleware"
	"lanos_go/routes"
	"lanos_go/services"
	"lanos_go/services/audit"
	"lanos_go/services/backend"
	"lanos_go/services/websocket"
	"lanos_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func init() {
	// Load configuration
	config.LoadConfig()

	// Initialize logging
	setupLogging(config.AppConfig)

	// Connect to database
	database.Connect()
}

func main() {
	cfg := config.AppConfig

	// Create WebSocket hub first
	wsHub := websocket.NewHub()
	go wsHub.Run()

	auditService := audit.NewService(database.GetDB(), database.GetRedisClient(), cfg.UseRedisAudit, wsHub)
	apiClient := backend.NewFromConfig(cfg)

	notifier, err := services.NewNotifier(cfg)
	if err != nil {
		logrus.WithError(err).Warn("Messaging webhook disabled; webhook forms will fail to submit")
	}

	registry, err := forms.DefaultRegistry()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load form schemas")
	}
	if cfg.ReferralCodePattern != "" {
		if err := registry.SetFieldPattern("scholarship-exam", "referralCode", cfg.ReferralCodePattern); err != nil {
			logrus.WithError(err).Fatal("Invalid REFERRAL_CODE_PATTERN")
		}
	}

	store := forms.NewStore(registry, forms.Deps{
		Backend:  apiClient,
		Notifier: notifier,
		Hook:     auditService.Hook,
	})

	scheduler := services.NewScheduler(auditService, store, notifier, cfg.SessionIdleTimeout)
	if err := scheduler.Start(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to start scheduler")
	}

	// Optional collaborators are passed as nil interfaces, not typed nils.
	var submissions controllers.SubmissionLister
	if database.GetDB() != nil {
		submissions = auditService
	}
	var archive controllers.Archiver
	if cfg.S3BucketName != "" {
		a, err := storage.NewArchiveService(context.Background(), cfg, database.GetDB())
		if err != nil {
			logrus.WithError(err).Warn("Export archive disabled")
		} else {
			archive = a
		}
	}

	health := services.NewHealthService("", "", services.HealthDeps{
		DB:            database.GetDB(),
		Redis:         database.GetRedisClient(),
		Backend:       apiClient,
		UseRedisAudit: cfg.UseRedisAudit,
		Environment:   cfg.AppEnv,
		Sessions:      store.Len,
	})

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 << 20,
		// sessions outlive the request, so values must not alias its buffer
		Immutable:    true,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Custom middleware
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.ClientContext())

	routes.SetupRoutes(app, routes.Controllers{
		Forms:     controllers.NewFormController(store),
		Admin:     controllers.NewAdminController(apiClient, submissions, archive),
		Health:    controllers.NewHealthController(health),
		WebSocket: controllers.NewWebSocketController(wsHub),
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logrus.Info("Shutting down")

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.AppEnv,
		"forms":       len(registry.List()),
	}).Info("🚀 Lanos registration API starting")

	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.WithError(err).Error("Server stopped")
	}

	// Drain what is left in the audit queue before closing connections.
	scheduler.Stop()
	scheduler.FlushAudit()
	wsHub.Stop()
	database.Close()
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// stdout in development, file otherwise
	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		logrus.WithError(err).Warn("Could not create logs directory")
		return
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
