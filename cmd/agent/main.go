package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"courier/internal/app"
	"courier/internal/config"
	"courier/internal/handler"
	"courier/internal/intake"
	"courier/internal/logging"
	internalRedis "courier/internal/redis"
	"courier/internal/repository"
	"courier/internal/repository/postgres"
	"courier/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	log := logging.New("courier-agent", cfg.Logger.Level)

	if cfg.Worker.ID == "" {
		log.Error("WORKER_ID is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST so datastores can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
		)
		if err != nil {
			log.Warn("failed to initialize New Relic", logging.Error(err))
		} else {
			log.Info("New Relic enabled", logging.String("app", cfg.NewRelic.AppName))
		}
	}

	// Redis serves the default offer slot and the idempotency cache.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Error("failed to connect to redis", logging.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// Select the durable offer store backend.
	var store repository.OfferStore
	switch cfg.Store.Backend {
	case "postgres":
		db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			log.Error("failed to connect to database", logging.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		store = postgres.NewOfferStore(db, cfg.Worker.ID, log)
	default:
		store = internalRedis.NewOfferStore(redisClient, cfg.Worker.ID, log)
	}
	log.Info("offer store ready", logging.String("backend", cfg.Store.Backend))

	// Dispatch channel.
	amqpConn, amqpCh, err := app.NewAMQP(cfg.AMQP)
	if err != nil {
		log.Error("failed to connect to amqp", logging.Error(err))
		os.Exit(1)
	}
	defer amqpConn.Close()

	// Wire the authority and its collaborators.
	gateway := service.NewBackendGateway(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
	alerts := service.NewAlertService(nil, log)
	clock := service.NewDeadlineClock()
	authority := service.NewAssignmentService(cfg.Worker.ID, store, clock, gateway, alerts, log)
	clock.Bind(authority.HandleDeadline, authority.HandleExpiryWarning)

	// Restore must finish before intake starts delivering events.
	if err := authority.Start(ctx); err != nil {
		log.Error("failed to restore offer slot", logging.Error(err))
		os.Exit(1)
	}
	defer authority.Stop()

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	consumer := intake.NewConsumer(amqpCh, cfg.AMQP.Exchange, cfg.Worker.ID, authority, log)
	go func() {
		if err := consumer.Run(runCtx); err != nil {
			log.Error("intake consumer stopped", logging.Error(err))
		}
	}()

	// Presentation HTTP server.
	router := app.NewRouter(app.RouterDeps{
		OfferHandler:  handler.NewOfferHandler(authority),
		StreamHandler: handler.NewStreamHandler(authority, log),
		RedisClient:   redisClient,
		NewRelicApp:   nrApp,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("agent listening",
			logging.String("port", cfg.Server.Port),
			logging.String("worker_id", cfg.Worker.ID))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", logging.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", logging.Error(err))
	}

	log.Info("agent exited")
}
