// Package app wires configuration, storage, and HTTP routing into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/convert-iq/convertiq/internal/ai"
	"github.com/convert-iq/convertiq/internal/billing"
	"github.com/convert-iq/convertiq/internal/cache"
	"github.com/convert-iq/convertiq/internal/config"
	"github.com/convert-iq/convertiq/internal/db"
	"github.com/convert-iq/convertiq/internal/httpapi"
	"github.com/convert-iq/convertiq/internal/pipeline"
	"github.com/convert-iq/convertiq/internal/ratelimit"
	"github.com/convert-iq/convertiq/internal/usage"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds graceful drain on termination.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs schema migrations.
func Migrate(_ context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed components and
// blocks until ctx is canceled or the listener fails.
func RunServer(ctx context.Context, configPath string, portOverride int) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	if portOverride > 0 {
		cfg.Port = portOverride
	}

	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	cacheStore := cache.New(cfg.Redis)
	defer cacheStore.Close()

	limiter := ratelimit.NewManager(cfg.Redis, nil, nil)
	defer limiter.Close()

	generator := ai.NewFallbackGenerator(ai.NewClient(cfg.OpenRouter), cfg.OpenRouter)
	runner := pipeline.NewRunner(generator, cacheStore)
	ledger := usage.NewLedger(conn)
	billingSvc := billing.NewService(conn, cfg.Stripe)
	syncer := billing.NewSyncer(conn, cfg.Stripe.WebhookSecret, billingSvc.RetrieveSubscription)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:        conn,
		Cfg:       &cfg,
		Runner:    runner,
		Generator: generator,
		Limiter:   limiter,
		Ledger:    ledger,
		Billing:   billingSvc,
		Syncer:    syncer,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting server on port %d", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		log.Info("server stopped")
		return nil
	case errServe := <-errCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return errServe
		}
		return nil
	}
}
