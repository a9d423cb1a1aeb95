package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/szibis/prwsink/internal/config"
	"github.com/szibis/prwsink/internal/health"
	"github.com/szibis/prwsink/internal/logging"
	"github.com/szibis/prwsink/internal/receiver"
	"github.com/szibis/prwsink/internal/sink"
	"github.com/szibis/prwsink/internal/telemetry"
)

func main() {
	cfg := config.ParseFlags()

	if cfg.ShowHelp {
		config.PrintUsage()
		os.Exit(0)
	}

	if cfg.ShowVersion {
		config.PrintVersion()
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}

	logging.SetResource(map[string]string{
		"service.name":    "prwsink",
		"service.version": config.Version(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One private registry: the sink and receiver register into it, the
	// metrics server exposes it, and telemetry bridges it to OTLP.
	registry := prometheus.NewRegistry()

	telCfg := cfg.TelemetryConfig()
	telCfg.Gatherer = registry
	tel, err := telemetry.Init(ctx, telCfg, "prwsink", config.Version())
	if err != nil {
		logging.Fatal("failed to initialize telemetry", logging.F("error", err.Error()))
	}
	if tel.Enabled() {
		logging.SetHook(tel.NewLogHook())
		logging.Info("telemetry enabled", logging.F(
			"endpoint", cfg.TelemetryEndpoint,
			"protocol", cfg.TelemetryProtocol,
		))
	}

	sgn, err := cfg.BuildSigner(ctx)
	if err != nil {
		logging.Fatal("failed to build request signer", logging.F("error", err.Error()))
	}

	sinkCfg := cfg.SinkConfig()
	sinkCfg.Signer = sgn
	sinkCfg.Logger = logging.Default()
	sinkCfg.Registerer = registry
	snk, err := sink.New(sinkCfg)
	if err != nil {
		logging.Fatal("failed to create delivery sink", logging.F("error", err.Error()))
	}

	rcvCfg := cfg.ReceiverConfig()
	rcvCfg.Logger = logging.Default()
	rcvCfg.Registerer = registry
	rcv, err := receiver.New(rcvCfg, snk)
	if err != nil {
		logging.Fatal("failed to create receiver", logging.F("error", err.Error()))
	}

	checker := health.New()
	checker.Register("receiver", rcv.HealthCheck)
	checker.Register("delivery", snk.Err)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsMux.HandleFunc("/live", checker.LiveHandler())
	metricsMux.HandleFunc("/ready", checker.ReadyHandler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	var servers errgroup.Group
	servers.Go(func() error {
		if err := rcv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("receiver: %w", err)
		}
		return nil
	})
	servers.Go(func() error {
		logging.Info("metrics endpoint started", logging.F("addr", cfg.MetricsAddr, "path", "/metrics"))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	// Surfaces listen failures while we wait for a signal.
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- servers.Wait()
	}()

	logging.Info("prwsink started", logging.F(
		"listen", cfg.ListenAddr,
		"remote_write_url", cfg.RemoteWriteURL,
		"metrics_addr", cfg.MetricsAddr,
		"batch_size", cfg.MaxBatchSizeInSamples,
		"compression", cfg.Compression,
	))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logging.Info("received signal, shutting down", logging.F("signal", sig.String()))
	case <-snk.Done():
		logging.Error("delivery failed terminally", logging.F("error", snk.Err().Error()))
		exitCode = 1
	case err := <-serverErr:
		if err != nil {
			logging.Error("server error", logging.F("error", err.Error()))
			exitCode = 1
		}
	}

	// Stop accepting writes first so the drain below sees the final batch.
	checker.SetDraining()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer shutdownCancel()

	if err := rcv.Stop(shutdownCtx); err != nil {
		logging.Error("receiver shutdown error", logging.F("error", err.Error()))
	}
	if err := snk.Close(shutdownCtx); err != nil {
		logging.Error("sink drain error", logging.F("error", err.Error()))
		exitCode = 1
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("metrics server shutdown error", logging.F("error", err.Error()))
	}
	if tel.Enabled() {
		telCtx, telCancel := context.WithTimeout(context.Background(), tel.ShutdownTimeout())
		if err := tel.Shutdown(telCtx); err != nil {
			logging.Error("telemetry shutdown error", logging.F("error", err.Error()))
		}
		telCancel()
	}

	logging.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
