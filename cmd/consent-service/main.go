package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/carevault/dlt-consent/internal/consent"
	"github.com/carevault/dlt-consent/pkg/config"
	"github.com/carevault/dlt-consent/pkg/database"
	"github.com/carevault/dlt-consent/pkg/logger"
	"github.com/carevault/dlt-consent/pkg/monitoring"
	"github.com/carevault/dlt-consent/pkg/repository"
)

const serviceName = "consent-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithComponent(serviceName).Info("Starting consent service")

	metrics := monitoring.NewMetricsCollector(serviceName)
	health := monitoring.NewHealthManager(serviceName, "1.0.0")

	// The event mirror is optional: without a database the service still
	// serves every consent operation from the ledger.
	var eventStore repository.ConsentEventStore
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Warn("Consent event mirror disabled: database unavailable")
	} else {
		defer db.Close()
		if err := db.CreateSchema(context.Background()); err != nil {
			log.WithError(err).Error("Failed to create database schema")
			os.Exit(1)
		}
		eventStore = repository.NewConsentEventsRepository(db.DB, log)
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	}

	ledgerClient := consent.NewLedgerClient(&cfg.Fabric, log, metrics)
	service := consent.NewConsentService(ledgerClient, eventStore, log, metrics)
	handlers := consent.NewHandlers(service, log)
	validator := consent.NewTokenValidator(&cfg.JWT)

	router := mux.NewRouter()

	if cfg.Monitoring.Enabled {
		router.Use(metrics.HTTPMiddleware)
		router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods("GET")
	}
	router.HandleFunc(cfg.Monitoring.HealthPath, health.HTTPHandler()).Methods("GET")

	var tracing *monitoring.TracingManager
	if cfg.Monitoring.TracingEnabled {
		tracing, err = monitoring.NewTracingManager(&monitoring.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: "1.0.0",
			JaegerEndpoint: cfg.Monitoring.JaegerEndpoint,
			Environment:    "production",
			SamplingRate:   0.1,
		})
		if err != nil {
			log.WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
		router.Use(tracing.HTTPMiddleware)
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(consent.AuthMiddleware(validator, log, metrics))
	handlers.RegisterRoutes(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consent service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Failed to shut down server gracefully")
	}
	if tracing != nil {
		if err := tracing.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failed to shut down tracing")
		}
	}

	log.Info("Consent service stopped")
}
