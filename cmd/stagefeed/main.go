package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/karaqr/realtime/internal/config"
	"github.com/karaqr/realtime/internal/database"
	"github.com/karaqr/realtime/internal/metrics"
	"github.com/karaqr/realtime/internal/model"
	"github.com/karaqr/realtime/internal/poller"
	"github.com/karaqr/realtime/internal/queue"
	"github.com/karaqr/realtime/internal/reactions"
	"github.com/karaqr/realtime/internal/realtime"
	"github.com/karaqr/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/stagefeed.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting stagefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"tenant_id", cfg.Instance.TenantID,
		"relay_url", cfg.Realtime.URL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	mets := metrics.NewMetrics()
	store := queue.NewStore(pool, logger)

	// Queue snapshot poller feeds the gauges
	queuePoller := poller.New(
		poller.Config{Interval: cfg.Poller.Interval, Timeout: 10 * time.Second},
		cfg.Instance.TenantID,
		store,
		poller.SnapshotHandlerFunc(func(entries []model.QueueEntry) {
			mets.ObserveQueue(entries)
		}),
		logger,
	)

	// Realtime relay client and connection manager
	relayCfg := realtime.ClientConfig{
		URL:               cfg.Realtime.URL,
		APIKey:            cfg.Realtime.APIKey,
		HandshakeTimeout:  cfg.Realtime.HandshakeTimeout,
		JoinTimeout:       cfg.Realtime.JoinTimeout,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		StaleTimeout:      cfg.Realtime.StaleTimeout,
		WriteTimeout:      cfg.Realtime.WriteTimeout,
	}
	relay := realtime.NewClient(relayCfg, logger)
	defer relay.Close()

	managerCfg := reactions.ManagerConfig{
		HandshakeTimeout:   cfg.Reactions.HandshakeTimeout,
		CloseTimeout:       cfg.Reactions.CloseTimeout,
		MinConnectInterval: cfg.Reactions.MinConnectInterval,
		BaseDelay:          cfg.Reactions.ReconnectBaseDelay,
		MaxDelay:           cfg.Reactions.ReconnectMaxDelay,
		MaxJitter:          cfg.Reactions.ReconnectMaxJitter,
		MaxAttempts:        cfg.Reactions.MaxReconnectAttempts,
		FeedLimit:          cfg.Reactions.FeedLimit,
		EchoSelf:           *cfg.Reactions.EchoSelf,
		RequireAck:         *cfg.Reactions.RequireAck,
	}
	manager := reactions.NewManager(managerCfg, relay, logger, mets.ManagerHooks(reactions.Hooks{}))

	result, err := manager.Connect(ctx, cfg.Instance.TenantID)
	if err != nil {
		// Retries may still be in flight for transient failures; only a
		// rejected tenant is fatal here.
		if errors.Is(err, reactions.ErrNoTenant) {
			logger.Error("cannot connect", "error", err)
			os.Exit(1)
		}
		logger.Warn("initial connect failed, reconnect pending",
			"error", err,
			"message", result.Message,
		)
	} else {
		logger.Info("reactions channel subscribed", "tenant_id", cfg.Instance.TenantID)
	}

	if err := queuePoller.Start(ctx); err != nil {
		logger.Error("failed to start queue poller", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newHTTPHandler(cfg.Metrics.Path, pool, manager, queuePoller, mets),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		queuePoller.Stop(shutdownCtx)
		manager.Disconnect(shutdownCtx)
		httpServer.Shutdown(shutdownCtx)
		return nil
	})

	logger.Info("stagefeed running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/healthz", cfg.Metrics.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("stagefeed exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("stagefeed stopped")
}

type healthDeps interface {
	Ping(ctx context.Context) error
}

// newHTTPHandler serves health, metrics, and a queue debug view.
func newHTTPHandler(metricsPath string, db healthDeps, manager *reactions.Manager, queuePoller *poller.Poller, mets *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, mets.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		health.Components["reactions"] = map[string]interface{}{
			"state":     string(manager.State()),
			"connected": manager.IsConnected(),
			"tenant_id": manager.Tenant(),
		}
		if !manager.IsConnected() {
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/queue", func(w http.ResponseWriter, r *http.Request) {
		entries := queuePoller.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":   len(entries),
			"entries": entries,
		})
	})

	mux.HandleFunc("/debug/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"stats": manager.Stats(),
			"feed":  manager.Feed(),
		})
	})

	return mux
}
