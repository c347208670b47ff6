package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/praxismed/eventd/internal/config"
	"github.com/praxismed/eventd/internal/domain/dlq"
	"github.com/praxismed/eventd/internal/domain/eventdef"
	"github.com/praxismed/eventd/internal/domain/eventlog"
	"github.com/praxismed/eventd/internal/domain/listener"
	"github.com/praxismed/eventd/internal/domain/stats"
	"github.com/praxismed/eventd/internal/domain/subscription"
	"github.com/praxismed/eventd/internal/platform/auth"
	"github.com/praxismed/eventd/internal/platform/bus"
	"github.com/praxismed/eventd/internal/platform/db"
	"github.com/praxismed/eventd/internal/platform/middleware"
	"github.com/praxismed/eventd/internal/platform/queue"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eventd",
		Short: "Event orchestration service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the event API server and queue workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations/tenant", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	sharedCmd := &cobra.Command{
		Use:   "shared",
		Short: "Apply shared-schema migrations (event definitions)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.EnsureSharedSchema(ctx, pool); err != nil {
				return err
			}
			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx, "shared")
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d shared migration(s) successfully.\n", count)
			return nil
		},
	}
	sharedCmd.Flags().String("dir", "./migrations/shared", "Path to shared migrations directory")
	cmd.AddCommand(sharedCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations/tenant", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.TenantSchema(name))
			if err := db.CreateTenantSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations/tenant", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories.
	defRepo := eventdef.NewRepoPG(pool)
	logRepo := eventlog.NewRepoPG(pool)
	handlerRepo := listener.NewRepoPG(pool)
	subRepo := subscription.NewRepoPG(pool)
	queueRepo := queue.NewRepoPG(pool)
	dlqRepo := dlq.NewRepoPG(pool)
	statsRepo := stats.NewRepoPG(pool)

	// Services.
	registry := listener.NewRegistry()
	defSvc := eventdef.NewService(defRepo)
	logSvc := eventlog.NewService(logRepo)
	listenerSvc := listener.NewService(handlerRepo, registry, logger)
	subSvc := subscription.NewService(subRepo, subscription.NewDeliverer(cfg.WebhookTimeout), logger)
	dlqSvc := dlq.NewService(dlqRepo, queueRepo, logSvc, logger)
	statsSvc := stats.NewService(statsRepo, stats.NewPoolChecker(pool), cfg.EventStaleAfter)

	executor := bus.NewExecutor(listenerSvc, subSvc, logRepo, logger)
	dispatcher := bus.NewDispatcher(defSvc, listenerSvc, subSvc, logSvc, executor, queueRepo,
		cfg.WebhookRetryCount, cfg.WebhookTimeout, logger)

	// Queue workers.
	processor := queue.NewProcessor(queue.Config{
		Workers:      cfg.EventWorkers,
		PollInterval: cfg.EventPollInterval,
		BatchSize:    cfg.EventBatchSize,
		StaleAfter:   cfg.EventStaleAfter,
		Backoff:      queue.Backoff{Base: cfg.EventBackoffBase, Max: cfg.EventBackoffMax},
	}, pool, queueRepo, executor, listenerSvc, subSvc, logSvc, dlqSvc, logger)
	go processor.Start(ctx)

	// Echo server.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// The health probe stays outside auth and tenant middleware.
	stats.NewHandler(statsSvc).RegisterHealthRoute(e)

	api := e.Group("/api/events")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware([]byte(cfg.AuthSecret)))
	}
	api.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	bus.NewHandler(dispatcher).RegisterRoutes(api)
	eventdef.NewHandler(defSvc).RegisterRoutes(api)
	eventlog.NewHandler(logSvc).RegisterRoutes(api)
	listener.NewHTTPHandler(listenerSvc).RegisterRoutes(api)
	subscription.NewHandler(subSvc).RegisterRoutes(api)
	dlq.NewHandler(dlqSvc).RegisterRoutes(api)
	stats.NewHandler(statsSvc).RegisterRoutes(api)

	// Serve.
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}
