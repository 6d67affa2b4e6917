// Command objectstore-server is the HTTP entrypoint for the bi-temporal
// object store: it wires Postgres storage, the RS256 principal
// authentication layer, the change-notification bus/listener, and a REST
// + WebSocket API over them. Grounded on the teacher's
// cmd/appserver/main.go (config/DSN resolution, migrations-on-startup,
// signal-driven graceful shutdown) and cmd/gateway/main.go (mux.Router +
// middleware chain construction, /metrics via promhttp).
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/r3e-network/objectstore/access"
	"github.com/r3e-network/objectstore/infrastructure/config"
	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/infrastructure/metrics"
	"github.com/r3e-network/objectstore/infrastructure/middleware"
	"github.com/r3e-network/objectstore/infrastructure/ratelimit"
	"github.com/r3e-network/objectstore/infrastructure/serviceauth"
	"github.com/r3e-network/objectstore/migrations"
	"github.com/r3e-network/objectstore/notify"
	"github.com/r3e-network/objectstore/store/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := logging.NewFromEnv("objectstore-server")

	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdle)

	if err := migrations.Up(db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	repo := postgres.New(db)
	sqlxDB := sqlx.NewDb(db, "postgres")

	privateKey, err := serviceauth.ParseRSAPrivateKeyFromPEM([]byte(cfg.JWTSigningKey))
	if err != nil {
		log.Fatalf("parse OBJECTSTORE_JWT_SIGNING_KEY: %v", err)
	}
	tokenGen := access.NewTokenGenerator(privateKey, cfg.JWTIssuer, access.DefaultTokenExpiry)
	resolver := access.NewResolver(&privateKey.PublicKey, cfg.JWTIssuer)
	authMiddleware := access.NewMiddleware(resolver, logger, "/healthz", "/readyz", "/metrics")

	bus := notify.NewBus()
	listener := notify.NewListener(cfg.DatabaseDSN, "objectstore-server", notify.NewPostgresCheckpoints(sqlxDB), repo.CatchUpSince, bus)
	if err := listener.Start(context.Background()); err != nil {
		log.Fatalf("start change-notification listener: %v", err)
	}
	defer listener.Stop()

	srv := &server{
		repo:     repo,
		bus:      bus,
		tokenGen: tokenGen,
		logger:   logger,
	}

	var metricsCollector *metrics.Metrics
	if cfg.MetricsEnabled {
		metricsCollector = metrics.Init("objectstore-server")
	}

	router := mux.NewRouter()
	router.Use(rateLimitMiddleware(ratelimit.New(ratelimit.DefaultConfig())))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	if metricsCollector != nil {
		router.Use(middleware.MetricsMiddleware("objectstore-server", metricsCollector))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	router.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Trace-ID"},
	}).Handler)
	router.Use(middleware.NewBodyLimitMiddleware(1 << 20).Handler)
	router.Use(authMiddleware.Handler)

	health := middleware.NewHealthChecker(cfg.Environment)
	health.RegisterCheck("database", func() error { return db.PingContext(context.Background()) })
	router.Handle("/healthz", health.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", middleware.LivenessHandler()).Methods(http.MethodGet)

	srv.registerRoutes(router)

	cronRunner := cron.New()
	checkpointLagJob := newCheckpointLagJob(sqlxDB, metricsCollector, "objectstore-server")
	if _, err := cronRunner.AddFunc("@every 30s", checkpointLagJob.run); err != nil {
		log.Fatalf("schedule checkpoint-lag job: %v", err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("objectstore-server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
