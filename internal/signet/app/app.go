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

	httpapi "github.com/aussiebroadwan/signet/internal/signet/http"
	"github.com/aussiebroadwan/signet/internal/signet/mail"
	"github.com/aussiebroadwan/signet/internal/signet/service"
	"github.com/aussiebroadwan/signet/internal/signet/store"
	"github.com/aussiebroadwan/signet/internal/signet/store/drivers/memory"
	"github.com/aussiebroadwan/signet/internal/signet/store/drivers/sqlite"
	"github.com/aussiebroadwan/signet/pkg/cryptox"
	"github.com/aussiebroadwan/signet/pkg/keyvault"
	"github.com/aussiebroadwan/signet/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the signing service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db    store.Store
	vault *keyvault.Vault

	// Services
	factorService       *service.FactorService
	signingService      *service.SigningService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "signet",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	vault, err := keyvault.New(keyvault.Options{
		Dir:                cfg.KeyDir,
		Bits:               cfg.RSABits,
		MaxConcurrentSigns: int64(cfg.MaxSigns),
		EncryptAtRest:      cfg.EncryptKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key vault: %w", err)
	}
	app.vault = vault

	app.initServices()
	app.initHTTP()

	return app, nil
}

func (app *Application) initStore() error {
	if app.cfg.DatabaseFile == "memory" {
		app.db = memory.NewStore()
		return nil
	}

	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	app.db = db
	return nil
}

func (app *Application) initServices() {
	var sender mail.Sender = mail.Discard{}
	if app.cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     app.cfg.SMTPHost,
			Port:     app.cfg.SMTPPort,
			From:     app.cfg.SMTPFrom,
			Username: app.cfg.SMTPUser,
			Password: app.cfg.SMTPPass,
		}, app.logger)
	}

	app.factorService = &service.FactorService{
		Store:       app.db,
		Sender:      sender,
		Issuer:      app.cfg.Issuer,
		TTL:         app.cfg.OTPTTL,
		CodeWidth:   app.cfg.CodeWidth,
		MaxAttempts: app.cfg.MaxAttempts,
		TOTPSkew:    app.cfg.TOTPSkew,
	}

	app.signingService = &service.SigningService{
		Store:            app.db,
		Factor:           app.factorService,
		Vault:            app.vault,
		Logger:           app.logger,
		DefaultAlgorithm: app.cfg.DigestAlgorithm,
	}

	app.housekeepingService = service.NewHousekeepingService(app.db, app.logger, app.cfg.HousekeepingInterval)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.db, app.vault, BuildVersion, app.logger)
	router.FactorService = app.factorService
	router.SigningService = app.signingService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("signing service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down signing service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("signing service stopped")
	return nil
}
