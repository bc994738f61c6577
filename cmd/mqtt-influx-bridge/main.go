package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-influx-bridge/config"
	"mqtt-influx-bridge/internal/broker"
	"mqtt-influx-bridge/internal/broker/mqtt"
	"mqtt-influx-bridge/internal/broker/nats"
	"mqtt-influx-bridge/internal/forwarder"
	"mqtt-influx-bridge/internal/health"
	"mqtt-influx-bridge/internal/logger"
	"mqtt-influx-bridge/internal/metrics"
	"mqtt-influx-bridge/internal/stats"
	"mqtt-influx-bridge/internal/storage/influxdb"
)

func main() {
	fmt.Println("MQTT to InfluxDB bridge")

	configPath := flag.String("config", "", "path to config file, JSON or YAML (empty = defaults and environment)")

	// Optional override flags
	logLevelOverride := flag.String("log-level", "", "override log level (empty = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "serve metrics and health on this address (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")

	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := cfg.ApplyOverrides(*logLevelOverride, *metricsAddrOverride, *metricsIntervalOverride); err != nil {
		log.Fatalf("invalid command line override: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var reg *prometheus.Registry

	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector := metrics.NewMetricsCollector(metricsService, updateInterval)
		metricsCollector.Start()
		defer metricsCollector.Stop()
	}

	statsCollector := stats.NewStatsCollector()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signals cancel ctx from here on, so an interrupt also aborts connect retries.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go handleSignals(sigChan, cancel, logger)

	// Store
	store, err := influxdb.NewStore(&cfg.InfluxDB, logger)
	if err != nil {
		logger.Fatal("failed to create influxdb store", "error", err)
	}
	if err := store.Connect(ctx); err != nil {
		store.Close()
		if ctx.Err() != nil {
			logger.Info("startup interrupted")
			return
		}
		logger.Fatal("failed to connect to influxdb", "url", cfg.InfluxDB.URL(), "error", err)
	}
	defer store.Close()

	fwd := forwarder.New(store, &cfg.Forwarder, logger, metricsService, statsCollector)

	// Broker
	listener, err := newListener(cfg, logger, metricsService, statsCollector, fwd.Handle)
	if err != nil {
		logger.Fatal("failed to create broker listener", "error", err)
	}
	if err := listener.Connect(ctx); err != nil {
		listener.Close()
		if ctx.Err() != nil {
			logger.Info("startup interrupted")
			return
		}
		store.Close()
		logger.Fatal("failed to connect to broker", "transport", cfg.Transport, "error", err)
	}

	// Metrics, health and stats endpoints
	var httpServer *http.Server
	if cfg.Metrics.Enabled {
		checker := health.NewChecker(listener, store, statsCollector)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))
		mux.Handle("/healthz", checker.HealthHandler())
		mux.Handle("/readyz", checker.ReadyHandler())
		mux.Handle("/stats", health.StatsHandler(statsCollector))

		httpServer = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- listener.Run(ctx)
	}()

	logger.Info("mqtt-influx-bridge started",
		"transport", cfg.Transport,
		"prefix", cfg.Forwarder.Prefix,
		"topics", listener.Subscriptions(),
		"influxdb", cfg.InfluxDB.URL(),
		"metricsEnabled", cfg.Metrics.Enabled)

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil {
			logger.Error("broker listener stopped", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}

	cancel()
	listener.Close()
	logger.Info("bridge stopped", "stats", statsCollector.GetStats())

	if exitCode != 0 {
		store.Close()
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

// handleSignals flushes the log on SIGHUP and cancels on SIGINT or SIGTERM.
// After the first stop signal the handlers are released, so a second one
// terminates the process immediately.
func handleSignals(sigChan chan os.Signal, cancel context.CancelFunc, logger *logger.Logger) {
	for sig := range sigChan {
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, flushing logs")
			_ = logger.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...", "signal", sig.String())
			signal.Stop(sigChan)
			cancel()
			return
		}
	}
}

func newListener(cfg *config.Config, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector, handler broker.MessageHandler) (broker.Listener, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		return nats.NewListener(&cfg.NATS, log, m, st, handler)
	default:
		return mqtt.NewListener(&cfg.MQTT, log, m, st, handler)
	}
}
