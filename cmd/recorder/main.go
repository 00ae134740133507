package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsight/realtime/internal/archive"
	"github.com/finsight/realtime/internal/config"
	"github.com/finsight/realtime/internal/database"
	"github.com/finsight/realtime/internal/mux"
	"github.com/finsight/realtime/internal/transport"
	"github.com/finsight/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	healthPort := flag.Int("health-port", 8080, "port for the health endpoint")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting recorder",
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

	if !cfg.Archive.Enabled {
		logger.Error("archive is disabled in config; nothing to record")
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Realtime.WSURL,
		"types", cfg.Archive.MessageTypes,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Transport and multiplexer
	client := transport.NewClient(transport.ClientConfig{
		URL:                cfg.Realtime.WSURL,
		AuthToken:          cfg.Realtime.AuthToken,
		HandshakeTimeout:   cfg.Realtime.HandshakeTimeout,
		WriteTimeout:       cfg.Realtime.WriteTimeout,
		PingInterval:       cfg.Realtime.PingInterval,
		ReconnectBaseDelay: cfg.Realtime.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Realtime.ReconnectMaxDelay,
		BufferSize:         cfg.Realtime.BufferSize,
	}, logger)

	m := mux.NewMux(client, logger)

	recorder := archive.NewRecorder(archive.Config{
		MessageTypes:  cfg.Archive.MessageTypes,
		Table:         cfg.Archive.Table,
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		BufferSize:    cfg.Archive.BufferSize,
	}, m, pool, logger)

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *healthPort),
		Handler: createHealthHandler(pool, client, recorder),
	}

	go func() {
		logger.Info("starting health server", "port", *healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Connect and start
	logger.Info("connecting to realtime feed", "url", cfg.Realtime.WSURL)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if err := m.Start(ctx); err != nil {
		logger.Error("failed to start multiplexer", "error", err)
		os.Exit(1)
	}

	if err := recorder.Start(ctx); err != nil {
		logger.Error("failed to start recorder", "error", err)
		os.Exit(1)
	}

	// Drain transport errors so the channel never backs up.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-client.Errors():
				if !ok {
					return
				}
				logger.Warn("transport error", "error", err)
			}
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				muxStats := m.Stats()
				recStats := recorder.Stats()
				logger.Info("stats",
					"connected", client.IsConnected(),
					"received", muxStats.FramesReceived,
					"dispatched", muxStats.FramesDispatched,
					"parse_errors", muxStats.ParseErrors,
					"inserts", recStats.Inserts,
					"conflicts", recStats.Conflicts,
					"flushes", recStats.Flushes,
					"insert_errors", recStats.Errors,
					"dropped", recStats.Dropped,
				)
			}
		}
	}()

	logger.Info("recorder running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", *healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	recorder.Stop(shutdownCtx)
	m.Stop(shutdownCtx)
	client.Close()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("recorder stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, client transport.Client, recorder *archive.Recorder) http.Handler {
	handler := http.NewServeMux()

	handler.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check transport
		if client.IsConnected() {
			health.Components["transport"] = "connected"
		} else {
			health.Components["transport"] = "disconnected"
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		stats := recorder.Stats()
		health.Components["recorder"] = map[string]int64{
			"inserts":   stats.Inserts,
			"conflicts": stats.Conflicts,
			"flushes":   stats.Flushes,
			"errors":    stats.Errors,
			"dropped":   stats.Dropped,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return handler
}
