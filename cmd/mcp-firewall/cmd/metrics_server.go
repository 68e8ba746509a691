package cmd

import (
	"log/slog"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	inboundhttp "github.com/mcpfirewall/sidecar/internal/adapter/inbound/http"
)

// startMetricsServer serves reg's Prometheus instruments on a dedicated
// listener, kept separate from the main /mcp listener so scraping never
// competes with request admission for the same accept loop.
func startMetricsServer(addr string, reg *prometheus.Registry, logger *slog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", inboundhttp.MetricsHandler(reg))
	server := &stdhttp.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server
}
