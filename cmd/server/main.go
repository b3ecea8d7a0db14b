// Package main provides the entry point for the PubMed search service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/pubmed-search-service/internal/config"
	"github.com/helixir/pubmed-search-service/internal/observability"
	"github.com/helixir/pubmed-search-service/internal/pubmed"
	httpserver "github.com/helixir/pubmed-search-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("pubmed-search-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("pubmedsvc", prometheus.DefaultRegisterer)

	// Create the PubMed access client. It owns the rate limiter, response
	// cache, and in-flight registry for the process lifetime.
	client := pubmed.New(pubmed.Config{
		BaseURL:          cfg.PubMed.BaseURL,
		Tool:             cfg.PubMed.Tool,
		Contact:          cfg.PubMed.Contact,
		APIKey:           cfg.PubMed.APIKey,
		Timeout:          cfg.PubMed.Timeout,
		MaxRetries:       cfg.PubMed.MaxRetries,
		RetryDelay:       cfg.PubMed.RetryDelay,
		RateLimit:        cfg.PubMed.RateLimit,
		Burst:            cfg.PubMed.Burst,
		MaxResults:       cfg.PubMed.MaxResults,
		SummaryBatchSize: cfg.PubMed.SummaryBatchSize,
		CacheTTL:         cfg.PubMed.CacheTTLDuration(),
		CacheDir:         cfg.PubMed.CacheDir,
	}, logger, metrics)
	logger.Info().
		Str("base_url", cfg.PubMed.BaseURL).
		Bool("api_key_set", cfg.PubMed.APIKey != "").
		Msg("pubmed client created")

	// Create HTTP REST API server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, client, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("pubmed-search-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down pubmed-search-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("pubmed-search-service shutdown complete")
	return nil
}
