package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/junobuild/satellite/cmd/satellite/container"
	"github.com/junobuild/satellite/cmd/satellite/repository"
	"github.com/junobuild/satellite/cmd/satellite/routes"
	"github.com/junobuild/satellite/common/bootstrap"
	"github.com/junobuild/satellite/common/db"
	"github.com/junobuild/satellite/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, logger, redis, queue, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "satellite",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.Migrate(database)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap satellite: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Deferred recertification of proposal-committed assets
	if err := serviceContainer.ProposalService.StartRecertifier(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start recertifier: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e)
	registerRoutes(e, serviceContainer)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "satellite",
		})
	})
}

// registerRoutes registers all application routes using the service
// container. The public catch-all goes last so the API keeps precedence.
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterUploadRoutes(e, serviceContainer)
	routes.RegisterProposalRoutes(e, serviceContainer)
	routes.RegisterAdminRoutes(e, serviceContainer)
	routes.RegisterServeRoutes(e, serviceContainer)
}

// startServer runs the HTTP server with graceful shutdown
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("satellite", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
