package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	inboundhttp "github.com/mcpfirewall/sidecar/internal/adapter/inbound/http"
	"github.com/mcpfirewall/sidecar/internal/config"
	"github.com/mcpfirewall/sidecar/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the firewall sidecar",
	Long: `Run starts the HTTP listener that admits, rate-limits, verifies, evaluates,
forwards and audits every request to POST /mcp against the configured policy
document before it reaches the upstream service.`,
	RunE: runSidecar,
}

func init() {
	if err := config.BindServerFlags(runCmd.Flags(), appViper); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(runCmd)
}

func runSidecar(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	settings, err := config.LoadServerSettings(appViper)
	if err != nil {
		return fmt.Errorf("load server settings: %w", err)
	}

	var metrics service.MetricsRecorder
	var metricsServer *stdhttp.Server
	if settings.MetricsAddr != "" {
		m, reg := inboundhttp.NewMetrics()
		metrics = m
		metricsServer = startMetricsServer(settings.MetricsAddr, reg, logger)
	}

	proxy, sink, err := buildProxyService(settings, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if closer, ok := sink.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	server := &stdhttp.Server{
		Addr:              settings.ListenAddr,
		Handler:           inboundhttp.NewMux(proxy),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp-firewall listening", "addr", settings.ListenAddr, "upstream", settings.UpstreamURL)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != stdhttp.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
