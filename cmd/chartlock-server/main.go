package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chartlock/chartlock/internal/config"
	"github.com/chartlock/chartlock/internal/domain/access"
	"github.com/chartlock/chartlock/internal/domain/audit"
	"github.com/chartlock/chartlock/internal/domain/breakglass"
	"github.com/chartlock/chartlock/internal/domain/notes"
	"github.com/chartlock/chartlock/internal/platform/auth"
	"github.com/chartlock/chartlock/internal/platform/db"
	"github.com/chartlock/chartlock/internal/platform/hipaa"
	"github.com/chartlock/chartlock/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chartlock-server",
		Short: "Clinical note integrity and PHI access control service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
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

	// PHI field encryption
	var phiEncryptor *hipaa.PHIEncryptor
	keyBytes, err := cfg.EncryptionKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("PHI_ENCRYPTION_KEY must be a valid hex-encoded 32-byte key")
	}
	if keyBytes != nil {
		phiEncryptor, err = hipaa.NewPHIEncryptor(keyBytes)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create PHI encryptor")
		}
		logger.Info().Msg("PHI field-level encryption enabled")
	} else {
		logger.Warn().Msg("PHI_ENCRYPTION_KEY not set; PHI field-level encryption is disabled")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Break-Glass"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// -- Domain Services --

	// Audit logging
	auditRepo := audit.NewRepoPG(pool)
	auditSvc := audit.NewService(auditRepo, audit.NewPatientLookupPG(pool), logger)
	auditHandler := audit.NewHandler(auditSvc)

	// Access decision engine
	accessDir := access.NewDirectoryPG(pool)
	accessEngine := access.NewEngine(accessDir, accessDir, accessDir, auditSvc, logger)
	accessHandler := access.NewHandler(accessEngine)

	// Break glass
	bgRepo := breakglass.NewRepoPG(pool)
	bgSvc := breakglass.NewService(bgRepo, auditSvc, logger)
	bgHandler := breakglass.NewHandler(bgSvc)

	// Clinical notes
	noteRepo := notes.NewNoteRepoPG(pool)
	sigRepo := notes.NewSignatureRepoPG(pool)
	amendRepo := notes.NewAmendmentRepoPG(pool)
	noteDir := notes.NewDirectoryPG(pool)
	noteSvc := notes.NewService(noteRepo, sigRepo, amendRepo, noteDir, logger)
	noteHandler := notes.NewHandler(noteSvc, accessEngine)

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Emergency override
	apiV1.Use(middleware.BreakGlass(logger, bgSvc))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// -- Register Domain Handlers --
	noteHandler.RegisterRoutes(apiV1)
	accessHandler.RegisterRoutes(apiV1)
	auditHandler.RegisterRoutes(apiV1)
	bgHandler.RegisterRoutes(apiV1)

	if phiEncryptor != nil {
		hipaa.NewHandler(phiEncryptor).RegisterRoutes(apiV1)
	}

	logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting server")
	return e.Start(":" + cfg.Port)
}
