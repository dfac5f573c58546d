package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CreateIntelligens/voicetextpro/internal/calendar"
	"github.com/CreateIntelligens/voicetextpro/internal/config"
	"github.com/CreateIntelligens/voicetextpro/internal/crypto"
	"github.com/CreateIntelligens/voicetextpro/internal/google"
	"github.com/CreateIntelligens/voicetextpro/internal/instrumentation"
	"github.com/CreateIntelligens/voicetextpro/internal/link"
	"github.com/CreateIntelligens/voicetextpro/internal/oauthstate"
	"github.com/CreateIntelligens/voicetextpro/internal/server"
	"github.com/CreateIntelligens/voicetextpro/internal/store"
	"github.com/CreateIntelligens/voicetextpro/internal/tokens"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode   bool
		httpAddr    string
		metricsAddr string
		runMigrate  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calendar integration service",
		Long: `Start the HTTP service that manages Google Calendar account links for
VoiceTextPro users.

Configuration (environment):
  GOOGLE_CLIENT_ID      OAuth client ID
  GOOGLE_CLIENT_SECRET  OAuth client secret
  GOOGLE_REDIRECT_URL   Public callback URL, e.g. https://app.example.com/api/calendar/callback
  CALENDAR_TOKEN_KEY    Hex-encoded 256-bit key for credential encryption.
                        Generate with: openssl rand -hex 32
  DATABASE_URL          PostgreSQL URL; omit to use the in-memory store
                        (single instance, development only)

When the OAuth client or encryption key is missing, the service still
starts and serves health endpoints, but the calendar API answers 503.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}

			return runServe(cfg, debugMode, runMigrate)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().BoolVar(&runMigrate, "migrate", false, "Apply database migrations before starting")

	return cmd
}

func runServe(cfg config.Config, debugMode, runMigrate bool) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		if err := provider.Shutdown(shCtx); err != nil {
			logger.Error("instrumentation shutdown failed", "error", err)
		}
	}()

	// Select the credential store
	var credStore store.CredentialStore
	if cfg.DatabaseURL != "" {
		if runMigrate {
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}

		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		pingCtx, pingCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer pingCancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}

		credStore = store.NewPostgresCredentialStore(db)
		logger.Info("using postgres credential store")
	} else {
		credStore = store.NewMemoryCredentialStore()
		logger.Warn("DATABASE_URL not set, using in-memory credential store; links are lost on restart")
	}

	// Wire the calendar integration when fully configured
	serverConfig := server.Config{
		Addr:       cfg.HTTPAddr,
		Configured: cfg.CalendarConfigured(),
		Logger:     logger,
		Metrics:    provider.Metrics(),
	}

	if cfg.CalendarConfigured() {
		key, err := cfg.TokenKey()
		if err != nil {
			return err
		}
		cipher, err := crypto.NewTokenCipher(key)
		if err != nil {
			return err
		}

		oauthClient := google.NewClient(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})

		vault := tokens.NewVault(credStore, cipher)
		tokenProvider := tokens.NewProvider(vault, oauthClient, logger, provider.Metrics())

		serverConfig.Orchestrator = link.NewOrchestrator(
			oauthstate.NewCodec(), oauthClient, vault, logger, provider.Metrics())
		serverConfig.Reader = calendar.NewReader(tokenProvider, logger, provider.Metrics())
		serverConfig.RateLimiter = server.NewRateLimiter(server.DefaultRateLimiterConfig(), logger)
	} else {
		logger.Warn("calendar integration not configured; api endpoints will answer 503")
	}

	srv := server.New(serverConfig)

	// Start metrics server if instrumentation is enabled
	var metricsServer *server.MetricsServer
	if provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(cfg.MetricsAddr, provider, logger)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer drainCancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
