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

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/authz"
	"github.com/caregate/caregate/internal/compliance"
	"github.com/caregate/caregate/internal/config"
	"github.com/caregate/caregate/internal/consent"
	"github.com/caregate/caregate/internal/platform/clock"
	"github.com/caregate/caregate/internal/platform/db"
	"github.com/caregate/caregate/internal/platform/identity"
	"github.com/caregate/caregate/internal/platform/middleware"
	"github.com/caregate/caregate/internal/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caregate-server",
		Short: "Authorization and consent lifecycle server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-30s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-30s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

// reportCmd generates a compliance report from the persisted audit trail
// without starting the server.
func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a compliance report from the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			csvPath, _ := cmd.Flags().GetString("csv")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for reporting")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			clk := clock.NewSystem()
			rec := audit.NewRecorder(audit.NewEventStorePG(pool), clk, newLogger())
			defer rec.Close(ctx)

			end := clk.Now()
			start := end.AddDate(0, 0, -days)

			report, err := compliance.NewReporter(rec, clk).Generate(ctx, start, end)
			if err != nil {
				return err
			}

			fmt.Printf("Compliance report %s to %s\n",
				report.WindowStart.Format(time.RFC3339), report.WindowEnd.Format(time.RFC3339))
			fmt.Printf("  total events:     %d\n", report.TotalEvents)
			fmt.Printf("  data access:      %d\n", report.TotalDataAccess)
			fmt.Printf("  violations:       %d\n", report.TotalViolations)
			fmt.Printf("  compliance score: %.2f\n", report.OverallComplianceScore)

			if csvPath != "" {
				events, err := rec.QueryEvents(ctx, audit.Query{From: start, To: end})
				if err != nil {
					return err
				}
				f, err := os.Create(csvPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := audit.WriteCSV(f, events); err != nil {
					return err
				}
				fmt.Printf("Wrote %d audit events to %s\n", len(events), csvPath)
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "Report window in days, ending now")
	cmd.Flags().String("csv", "", "Also export the window's audit events to this CSV file")
	return cmd
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	clk := clock.NewSystem()

	// Stores: pg-backed when DATABASE_URL is set, in-memory otherwise.
	var eventStore audit.EventStore = audit.NewInMemoryEventStore()
	var consentRepo consent.Repository = consent.NewInMemoryRepository()
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		eventStore = audit.NewEventStorePG(pool)
		consentRepo = consent.NewRepositoryPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set; running on in-memory stores")
	}

	recorder := audit.NewRecorder(eventStore, clk, logger,
		audit.WithQueueSize(cfg.AuditQueueSize),
		audit.WithMaxRetries(cfg.AuditMaxRetries),
		audit.WithRetryDelay(cfg.AuditRetryDelay()),
	)

	guard := session.NewGuard(clk, recorder, cfg.SessionLifetime(), cfg.SessionWarningThreshold())
	authorizer := authz.NewAuthorizer(authz.DefaultRoles(), recorder, guard)
	consentStore := consent.NewStore(consentRepo, recorder, clk)
	reporter := compliance.NewReporter(recorder, clk)

	// Background loops
	sweeper := consent.NewSweeper(consentStore, clk, logger, cfg.ConsentSweepInterval())
	sweeper.Start(ctx)
	watcher := session.NewWatcher(guard, clk, logger, cfg.SessionCheckInterval(), cfg.SessionFineCheckInterval())
	watcher.Start(ctx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(identity.DevMiddleware())
		logger.Warn().Msg("development auth middleware active; all requests act as admin")
	} else {
		e.Use(identity.JWTMiddleware(identity.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")
	consent.NewHandler(consentStore, authorizer).RegisterRoutes(apiV1)
	session.NewHandler(guard).RegisterRoutes(apiV1)
	compliance.NewHandler(reporter, recorder, authorizer).RegisterRoutes(apiV1)

	// Start server in background
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	watcher.Stop()
	sweeper.Stop()
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("audit recorder flush incomplete")
	}
	if dropped := recorder.Dropped(); dropped > 0 {
		logger.Warn().Int64("dropped", dropped).Msg("audit events were dropped this run")
	}
	logger.Info().Msg("server stopped")
	return nil
}
