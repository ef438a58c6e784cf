package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"initiative-mcp/internal/api"
	"initiative-mcp/internal/auth"
	"initiative-mcp/internal/config"
	"initiative-mcp/internal/logging"
	"initiative-mcp/internal/mcp"
	"initiative-mcp/internal/repository"
	"initiative-mcp/internal/services"
	"initiative-mcp/internal/workflow"
)

const serviceName = "initiative-mcp"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Track initiatives through a multi-party document approval workflow",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: config.yaml in . or ./config)")

	root.AddCommand(
		newServeCmd(&configPath),
		newStdioCmd(&configPath),
		newMigrateCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the MCP tools over HTTP/SSE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			logger := logging.New(os.Stdout, cfg.Log.Level)
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func newStdioCmd(configPath *string) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve the MCP tools over stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			// stdout carries the protocol.
			logger := logging.New(os.Stderr, cfg.Log.Level)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			logger.Info("Serving MCP over stdio", "project", cfg.Project.Root, "actor", actor)
			// The stdio caller runs with the server's own filesystem rights.
			sessions := services.NewSessionFactory(a.opener, cfg.Project.Root, services.AllowProjectsOutsideRoot())
			return mcp.NewServer(a.manager, sessions, logger).ServeStdio(actor)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "Identity recorded in initiative history")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			logger := logging.New(os.Stdout, cfg.Log.Level)
			migrated, err := repository.Migrate(cfg)
			if err != nil {
				return err
			}
			if !migrated {
				logger.Info("Nothing to migrate", "driver", cfg.Storage.Driver)
				return nil
			}
			logger.Info("Migrations applied", "driver", cfg.Storage.Driver)
			return nil
		},
	}
}

// app holds the wiring shared by the serve and stdio commands.
type app struct {
	manager  *services.LifecycleManager
	opener   repository.Opener
	sessions *services.SessionFactory
	close    func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	def, err := workflow.LoadFile(cfg.Workflow.File)
	if err != nil {
		return nil, err
	}
	logger.Info("Workflow loaded", "stages", def.Len(), "file", cfg.Workflow.File)

	opener, closeStore, err := repository.OpenConfigured(ctx, cfg, def.Validate, logger)
	if err != nil {
		return nil, fmt.Errorf("storage initialization failed: %w", err)
	}

	metrics, err := services.NewMetrics(nil)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("metrics initialization failed: %w", err)
	}

	manager := services.NewLifecycleManager(def,
		services.WithLogger(logger),
		services.WithMetrics(metrics),
	)
	logger.Info("Service layer initialized")

	return &app{
		manager:  manager,
		opener:   opener,
		sessions: services.NewSessionFactory(opener, cfg.Project.Root),
		close:    closeStore,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting initiative service", "environment", cfg.Environment, "driver", cfg.Storage.Driver)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	if cfg.IsDev() && cfg.DevModeBypass {
		logger.Warn("Authentication bypass enabled", "actor", auth.DevActor)
	}

	e := echo.New()
	e.HideBanner = true
	apiHandler := api.NewHandler(a.manager, a.sessions, logger)
	e.HTTPErrorHandler = apiHandler.HandleError

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(serviceName))

	e.GET("/healthz", apiHandler.HandleHealth)

	requireAuth := echo.WrapMiddleware(authz.RequireAuth)
	read := echo.WrapMiddleware(auth.RequireScope(auth.ScopeInitiativeRead))
	write := echo.WrapMiddleware(auth.RequireScope(auth.ScopeInitiativeWrite))

	apiGroup := e.Group("/api/v1", requireAuth)
	apiHandler.RegisterRoutes(apiGroup, read, write)
	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(a.manager, a.sessions, logger)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers), requireAuth, write)
	logger.Info("MCP protocol handlers mounted")

	server := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     e,
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE streams stay open for the whole MCP session.
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.HTTP.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}
