package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/meridianid/authd/pkg/config"
	"github.com/meridianid/authd/pkg/iam/auth/authapi"
	"github.com/meridianid/authd/pkg/logx"
)

func main() {
	logLevel := getEnv("LOG_LEVEL", "info")
	switch logLevel {
	case "debug":
		logx.SetLevel(logx.LevelDebug)
	case "warn":
		logx.SetLevel(logx.LevelWarn)
	case "error":
		logx.SetLevel(logx.LevelError)
	default:
		logx.SetLevel(logx.LevelInfo)
	}

	logx.Info("starting authd API server")

	cfg := config.Load()
	container := NewContainer(&cfg)
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: true,
		ErrorHandler:          authapi.ErrorHandler,
		IdleTimeout:           120 * time.Second,
		EnablePrintRoutes:     false,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New(requestid.Config{Header: "X-Request-ID"}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     joinOrigins(cfg.Server.CORSOrigins),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-CSRF-Token, X-Request-ID",
		AllowMethods:     "GET, POST, PUT, DELETE, PATCH, OPTIONS",
		AllowCredentials: true,
		ExposeHeaders:    "X-Request-ID, X-CSRF-Token",
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimit.Max,
		Expiration: cfg.Server.RateLimit.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	app.Get("/health", healthCheckHandler(container))
	app.Get("/", infoHandler)

	api := app.Group("/api/" + cfg.Server.APIVersion)
	authapi.RegisterRoutes(api, container.IAM.Handler, container.IAM.AuthMiddleware, container.IAM.CSRF.RequireCSRFToken())
	logx.Info("auth routes registered")

	app.Use(notFoundHandler)

	ctx, cancel := context.WithCancel(context.Background())
	container.StartBackgroundServices(ctx)

	startServer(app, cfg.Server.Port, cfg.Server.ShutdownTimeout)
	cancel()
}

// ============================================================================
// Handlers
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{"status": "healthy", "service": "authd"}

		if err := container.DB.Ping(); err != nil {
			health["db"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}

		if err := container.Redis.Ping(c.UserContext()).Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["redis"] = "healthy"
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func infoHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "authd",
		"endpoints": fiber.Map{
			"health": "/health",
			"auth":   "/api/v1/auth/*",
		},
	})
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":  "error",
		"message": "the requested endpoint does not exist",
	})
}

// ============================================================================
// Utility functions
// ============================================================================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func joinOrigins(origins []string) string {
	out := ""
	for i, o := range origins {
		if i > 0 {
			out += ","
		}
		out += o
	}
	return out
}

func startServer(app *fiber.App, port string, shutdownTimeout time.Duration) {
	go func() {
		logx.Infof("server listening on port %s", port)
		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("server error: %v", err)
		}
	}()

	gracefulShutdown(app, shutdownTimeout)
}

func gracefulShutdown(app *fiber.App, timeout time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logx.Infof("received signal %v, shutting down gracefully", sig)

	if err := app.ShutdownWithTimeout(timeout); err != nil {
		logx.Errorf("server forced to shutdown: %v", err)
	}

	logx.Info("server exited successfully")
}
