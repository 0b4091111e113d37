// Command datahub runs the metro data-plane hub: UDP request serving,
// the snapshot cache, the power-link interlock, and the totals workers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/metro-datahub/internal/config"
	"github.com/signalsfoundry/metro-datahub/internal/engine"
	"github.com/signalsfoundry/metro-datahub/internal/hub"
	"github.com/signalsfoundry/metro-datahub/internal/logging"
	"github.com/signalsfoundry/metro-datahub/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	listenAddr := flag.String("listen-addr", "", "UDP address the hub listens on (overrides config)")
	peerAddr := flag.String("peer-addr", "", "UDP address of the power-grid peer (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	staticEngine := flag.Bool("static-engine", false, "Serve a canned fixture network instead of waiting for the emulator")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *peerAddr != "" {
		cfg.PeerAddr = *peerAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	collector, err := observability.NewHubCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	var eng engine.Engine
	if *staticEngine {
		eng = engine.NewStaticDemo()
		log.Info(ctx, "using static fixture engine")
	}

	h := hub.New(cfg, eng, log, hub.WithMetrics(collector))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Run(runCtx); err != nil {
		log.Error(ctx, "hub exited", logging.Err(err))
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func serveMetrics(addr string, collector *observability.HubCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
