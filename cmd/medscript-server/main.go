package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medscript/medscript/internal/config"
	"github.com/medscript/medscript/internal/domain/document"
	"github.com/medscript/medscript/internal/domain/prescription"
	"github.com/medscript/medscript/internal/domain/verification"
	"github.com/medscript/medscript/internal/platform/auth"
	"github.com/medscript/medscript/internal/platform/db"
	"github.com/medscript/medscript/internal/platform/middleware"
	"github.com/medscript/medscript/internal/platform/suggestion"
	"github.com/medscript/medscript/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medscript-server",
		Short: "MedScript Pro prescription integrity server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect verification tokens",
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect [token]",
		Short: "Decode a token and print the record id it names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := inspectToken(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("record id: %s\n", id)
			fmt.Println("tag: present (validated only against the stored record)")
			return nil
		},
	}
	cmd.AddCommand(inspectCmd)

	return cmd
}

// inspectToken structurally decodes a token. No secret or database is
// needed: the tag can only be checked against the stored record, which is
// the resolver's job, not this command's.
func inspectToken(token string) (uuid.UUID, error) {
	id, _, err := verification.NewCodec(nil).Decode(token)
	return id, err
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Telemetry
	metrics := telemetry.NewProvider("medscript")

	// Domain wiring
	tokenSecret := cfg.TokenSecretBytes()
	if len(tokenSecret) == 0 {
		// Development convenience only; tokens do not survive restarts.
		tokenSecret = []byte("medscript-development-secret----")
		logger.Warn().Msg("TOKEN_SECRET not set, using ephemeral development secret")
	}
	codec := verification.NewCodec(tokenSecret)

	suggestClient := suggestion.NewClient(suggestion.Config{
		URL:     cfg.SuggestURL,
		APIKey:  cfg.SuggestAPIKey,
		Model:   cfg.SuggestModel,
		Timeout: cfg.SuggestTimeout(),
	}, logger)

	presRepo := prescription.NewRepoPG(pool)
	presSvc := prescription.NewService(presRepo, suggestClient, logger)
	presHandler := prescription.NewHandler(presSvc)

	renderer := document.NewRenderer(codec, cfg.ClinicName)
	docHandler := document.NewHandler(presSvc, renderer, metrics, logger)

	resolver := verification.NewResolver(codec, presRepo, metrics, logger)
	verifyHandler := verification.NewHandler(resolver)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Public surface: liveness, metrics, and token resolution. Token holders
	// verify documents without credentials.
	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())
	verifyHandler.RegisterRoutes(e.Group("/api/v1"))

	// Authenticated surface
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.Audit(logger))

	presHandler.RegisterRoutes(apiV1)
	docHandler.RegisterRoutes(apiV1)

	// Graceful shutdown
	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server start failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
