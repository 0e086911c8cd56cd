// Command server runs the entity kernel's HTTP API: one process hosting a
// kernel.Manager that lazily constructs a tenant kernel (schema registry,
// entity store, event log, verb executor, time-travel engine, subscription
// and integration dispatchers, CDC stream) on first access to each tenant
// id.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dot-do/entitykernel/applications"
	"github.com/dot-do/entitykernel/applications/auth"
	"github.com/dot-do/entitykernel/applications/httpapi"
	"github.com/dot-do/entitykernel/infrastructure/logging"
	"github.com/dot-do/entitykernel/infrastructure/metrics"
	"github.com/dot-do/entitykernel/infrastructure/middleware"
	"github.com/dot-do/entitykernel/internal/config"
	"github.com/dot-do/entitykernel/pkg/version"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage per tenant when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dsn != "" {
		cfg.DatabaseDSN = *dsn
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	accessLog := logging.New("entitykernel", cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	app, err := applications.New(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}
	defer app.Close()

	var authManager *auth.Manager
	if cfg.JWTSecret != "" {
		authManager = auth.NewManager(cfg.JWTSecret, cfg.JWTExpiry)
	} else {
		accessLog.Warn("JWT_SECRET not set; HTTP API is running without authentication")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		rlCfg := middleware.DefaultRateLimiterConfig(accessLog)
		rlCfg.RequestsPerSecond = cfg.RateLimitRequests
		rlCfg.Window = cfg.RateLimitWindow
		limiter = middleware.NewRateLimiterFromConfig(rlCfg)
	}

	routerOpts := &httpapi.RouterOptions{CORSOrigins: cfg.CORSOrigins}
	if cfg.MetricsEnabled || metrics.Enabled() {
		routerOpts.Metrics = metrics.Init("entitykernel")
	}
	router := httpapi.NewRouter(app.Manager, authManager, accessLog, limiter, routerOpts)

	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("entity kernel %s listening on %s", version.FullVersion(), listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
