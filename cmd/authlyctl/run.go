package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/authlyhq/authly-go/client"
	"github.com/authlyhq/authly-go/connection"
	"github.com/authlyhq/authly-go/identity"
	"github.com/authlyhq/authly-go/internal/circuitbreaker"
	"github.com/authlyhq/authly-go/internal/config"
	"github.com/authlyhq/authly-go/internal/telemetry"
	"github.com/authlyhq/authly-go/reconcile"
)

// runCmd bootstraps the client runtime and serves the debug HTTP surface
// until ctx is canceled: load config, wire telemetry, start the
// background work, listen until a shutdown signal, then drain with a
// bounded timeout.
func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "/etc/authly/authlyctl.yaml", "path to the authlyctl YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg := prometheus.NewRegistry()
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = telemetry.NewMetrics(reg)
	}

	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer shutdown(context.Background())
	}

	strategy := connection.ReInfer{
		Options: identity.Options{
			LocalCAPath:             cfg.Identity.LocalCAPath,
			IdentityPath:            cfg.Identity.IdentityPath,
			ServiceAccountTokenPath: cfg.Identity.ServiceAccountTokenPath,
			AuthenticateURL:         cfg.Identity.AuthenticateURL,
		},
		URL: cfg.Authority.ResolvedURL(),
	}

	breaker := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()).GetOrCreate("authority")

	cl, err := client.New(ctx, strategy, reconcile.Options{
		Breaker: breaker,
		Metrics: metrics,
	}, client.Options{Metrics: metrics})
	if err != nil {
		return fmt.Errorf("start client runtime: %w", err)
	}
	defer cl.Close()

	srv := &http.Server{
		Addr:         cfg.DebugServer.Addr,
		Handler:      debugRouter(cl, reg),
		ReadTimeout:  cfg.DebugServer.ReadTimeout,
		WriteTimeout: cfg.DebugServer.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("authlyctl: debug server listening", "addr", cfg.DebugServer.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("debug server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DebugServer.ShutdownTimeout)
	defer cancel()
	slog.Info("authlyctl: shutting down")
	return srv.Shutdown(shutdownCtx)
}

// debugRouter mounts the small introspection surface embedding
// applications get for free: liveness, the entity's own metadata as the
// authority sees it, and Prometheus metrics.
func debugRouter(cl *client.Client, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metadata", func(w http.ResponseWriter, r *http.Request) {
		md, err := cl.Metadata(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(md)
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}
