package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mental-health-navigator/high-tea/internals/config"
	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/initializers"
	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/routes"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
	"github.com/mental-health-navigator/high-tea/internals/utils"
)

func main() {
	if err := initializers.LoadEnvVariables(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogJSON).With("service", cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	telemetry, err := initializers.SetupTelemetry(ctx, cfg.OTLPEndpoint, cfg.AppName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "Telemetry shutdown failed", "error", err)
		}
	}()

	db, err := initializers.ConnectToDb(cfg.DBURL)
	if err != nil {
		return err
	}
	if err := initializers.SyncDatabase(db); err != nil {
		return err
	}

	upstreamClient, err := utils.NewUpstreamClient(ctx, cfg.Upstream)
	if err != nil {
		return err
	}

	cookieCfg := cfg.Cookie
	tokenManager := utils.NewTokenManager(db, &cookieCfg, cfg.JWTSecret, cfg.SessionCookie())

	var (
		provider   identity.SessionClient
		purgeCodes = func(context.Context) (int64, error) { return 0, nil }
	)
	switch cfg.OTPProvider {
	case config.ProviderSupabase:
		provider = identity.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, nil, logger)
	default:
		var mailer utils.Mailer
		if cfg.OTPLogCodes {
			mailer = &utils.LogMailer{Log: logger}
		} else {
			mailer = utils.NewEmailManager(&utils.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				User:     cfg.SMTP.User,
				Password: cfg.SMTP.Password,
				AppName:  cfg.AppName,
			})
		}
		emailProvider := identity.NewEmailProvider(db, mailer, []byte(cfg.EncryptionKey), identity.EmailProviderConfig{
			CodeTTL:        cfg.CodeTTL,
			ResendCooldown: cfg.ResendCooldown,
			MaxAttempts:    cfg.MaxAttempts,
		}, logger)
		provider = emailProvider
		purgeCodes = emailProvider.PurgeExpired
	}

	initializers.StartJanitor(ctx, cfg.CleanupInterval, initializers.PurgeFunc(func(ctx context.Context) (int64, int64, error) {
		challenges, err := purgeCodes(ctx)
		if err != nil {
			return 0, 0, err
		}
		revoked, err := tokenManager.PurgeRevoked()
		return challenges, revoked, err
	}), logger)

	router := routes.SetupRouter(routes.Dependencies{
		Config:       cfg,
		Log:          logger,
		Provider:     provider,
		TokenManager: tokenManager,
		Navigator:    upstream.NewNavigator(cfg.Upstream.NavigatorBaseURL, upstreamClient),
		Ingestion:    upstream.NewIngestion(cfg.Upstream.IngestionBaseURL, upstreamClient),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Server listening", "addr", srv.Addr, "otp_provider", cfg.OTPProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
