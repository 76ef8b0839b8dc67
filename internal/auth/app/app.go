package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	httpapi "github.com/aussiebroadwan/gatekeep/internal/auth/http"
	"github.com/aussiebroadwan/gatekeep/internal/auth/notify"
	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeep/internal/auth/telemetry"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/pwned"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"

	pwnedBurst = 5
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	cipher   *cryptox.Cipher
	hasher   cryptox.Argon2Hasher
	redis    *redis.Client // nil when notifications are only logged
	notifier notify.Notifier
	metrics  *telemetry.Metrics
	limits   *service.Limits
	limiter  *httpx.RateLimiter

	// Services
	userService              *service.UserService
	sessionService           *service.SessionService
	accountService           *service.AccountService
	emailVerificationService *service.EmailVerificationService
	passwordResetService     *service.PasswordResetService
	twoFactorService         *service.TwoFactorService
	housekeepingService      *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Redact:  slogx.SecretKeys,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initCrypto(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initNotifier(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	metrics, err := telemetry.New(otel.GetMeterProvider())
	if err != nil {
		app.closeBackends()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = metrics

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.closeBackends()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeBackends() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCrypto loads the secret encryption key and the password pepper.
func (app *Application) initCrypto() error {
	key, ephemeral, err := cryptox.LoadEncryptionKey(app.cfg.EncryptionKeyFile)
	if err != nil {
		return err
	}
	if ephemeral {
		app.logger.Warn("using an ephemeral encryption key, stored TOTP keys and recovery codes will not survive a restart")
	}

	cipher, err := cryptox.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}
	app.cipher = cipher

	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.Argon2Hasher{Pepper: pepper}

	return nil
}

// initNotifier connects to redis when configured. Without it codes are only
// written to the log.
func (app *Application) initNotifier(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		app.logger.Warn("no redis configured, verification codes will only be logged")
		app.notifier = notify.LogNotifier{Logger: app.logger}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := notify.Connect(ctx, app.cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	notifier := notify.NewRedisNotifier(client, app.cfg.NotifyStream)
	app.redis = client
	app.notifier = notifier

	app.logger.Info("notifications published to redis", "stream", notifier.Stream)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.limits = service.NewLimits()

	app.userService = &service.UserService{
		Store:  app.db,
		Cipher: app.cipher,
		Hasher: app.hasher,
	}
	if app.cfg.BreachCheck {
		app.userService.Breach = pwned.NewClient(app.cfg.PwnedURL, app.cfg.PwnedPerSecond, pwnedBurst)
	}

	app.sessionService = &service.SessionService{Store: app.db, Metrics: app.metrics}
	app.emailVerificationService = &service.EmailVerificationService{
		Store:    app.db,
		Notifier: app.notifier,
		Limits:   app.limits,
		Metrics:  app.metrics,
	}
	app.accountService = &service.AccountService{
		Store:              app.db,
		Users:              app.userService,
		Sessions:           app.sessionService,
		EmailVerifications: app.emailVerificationService,
		Limits:             app.limits,
		Metrics:            app.metrics,
	}
	app.passwordResetService = &service.PasswordResetService{
		Store:    app.db,
		Users:    app.userService,
		Sessions: app.sessionService,
		Notifier: app.notifier,
		Limits:   app.limits,
		Metrics:  app.metrics,
	}
	app.twoFactorService = &service.TwoFactorService{
		Store:   app.db,
		Users:   app.userService,
		Limits:  app.limits,
		Metrics: app.metrics,
		Issuer:  app.cfg.Issuer,
	}

	app.limiter = httpx.NewRateLimiter(app.cfg.GlobalLimit, httpx.IPKeyExtractor, httpx.MethodCost)
	app.limiter.OnReject = func(r *http.Request) {
		app.metrics.RecordRateLimited(r.Context(), "global")
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.limits,
		app.limiter,
	)
	app.housekeepingService.Metrics = app.metrics
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	cookies := httpx.CookieOptions{
		Secure: app.cfg.CookieSecure,
		Domain: app.cfg.CookieDomain,
	}
	if !cookies.Secure {
		app.logger.Warn("cookies are not marked Secure")
	}

	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.notifier,
		cookies,
		app.limiter,
		app.logger,
	)

	// Wire services to router
	router.Accounts = app.accountService
	router.Users = app.userService
	router.Sessions = app.sessionService
	router.EmailVerifications = app.emailVerificationService
	router.PasswordResets = app.passwordResetService
	router.TwoFactor = app.twoFactorService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
