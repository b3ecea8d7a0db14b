// Package observability provides logging and metrics support for the
// PubMed search service.
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("operation", "search").Msg("upstream call issued")
//
// # Metrics
//
// Create and register metrics once at startup:
//
//	metrics := observability.NewMetrics("pubmedsvc", prometheus.DefaultRegisterer)
//	metrics.OperationsTotal.WithLabelValues("search").Inc()
//
// Tests pass a fresh prometheus.NewRegistry so each test case can own an
// isolated Metrics instance.
package observability
