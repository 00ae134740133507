// feedtap connects to the realtime feed and streams received frames to the
// console. Useful for inspecting what the server pushes on a given set of
// message types.
//
// Usage: go run ./cmd/feedtap --config configs/client.local.yaml --types market.tick,portfolio.update
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/finsight/realtime/internal/config"
	"github.com/finsight/realtime/internal/mux"
	"github.com/finsight/realtime/internal/notify"
	"github.com/finsight/realtime/internal/stream"
	"github.com/finsight/realtime/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	types := flag.String("types", "market.tick", "comma-separated message types to subscribe to")
	streamFlag := flag.Bool("stream", false, "also consume the analysis stream")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

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

	// Toast center mirrors what the UI would show for transport trouble.
	center := notify.NewCenter(notify.Config{
		MaxVisible:      cfg.Notifications.MaxVisible,
		DefaultDuration: cfg.Notifications.DefaultDuration,
		RemoveDelay:     cfg.Notifications.RemoveDelay,
		DefaultPosition: notify.Position(cfg.Notifications.DefaultPosition),
	}, logger)

	// Subscriptions can be registered before the transport connects.
	for _, msgType := range strings.Split(*types, ",") {
		msgType = strings.TrimSpace(msgType)
		if msgType == "" {
			continue
		}
		m.Subscribe(msgType, printFrame(msgType, *verbose))
		logger.Info("subscribed", "type", msgType)
	}

	var agg *stream.Aggregator
	if *streamFlag {
		agg = stream.NewAggregator(m, stream.Config{
			MessageType: cfg.Stream.MessageType,
			OnChunk: func(content string) {
				fmt.Print(content)
			},
			OnComplete: func() {
				fmt.Println()
				logger.Info("analysis stream complete")
			},
		}, logger)
	}

	logger.Info("connecting", "url", cfg.Realtime.WSURL)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if err := m.Start(ctx); err != nil {
		logger.Error("failed to start multiplexer", "error", err)
		os.Exit(1)
	}

	if agg != nil {
		agg.Start()
	}

	// Surface transport errors as toasts, the way the web client would.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-client.Errors():
				if !ok {
					return
				}
				id := center.Error("Connection problem", err.Error())
				logger.Warn("transport error", "error", err, "toast_id", id)
			}
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := m.Stats()
				logger.Info("stats",
					"connected", client.IsConnected(),
					"received", stats.FramesReceived,
					"dispatched", stats.FramesDispatched,
					"parse_errors", stats.ParseErrors,
					"unknown_types", stats.UnknownTypes,
					"active_keys", stats.ActiveKeys,
					"active_handlers", stats.ActiveHandlers,
					"toasts", center.Count(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if agg != nil {
		agg.Stop()
	}
	m.Stop(shutdownCtx)
	client.Close()

	logger.Info("shutdown complete")
}

func printFrame(msgType string, verbose bool) mux.Handler {
	return func(f mux.Frame) {
		if verbose {
			var pretty any
			if err := json.Unmarshal(f.Data, &pretty); err == nil {
				data, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Printf("[%s] %s\n", strings.ToUpper(msgType), data)
				return
			}
		}
		fmt.Printf("[%s] received_at=%s bytes=%d\n",
			strings.ToUpper(msgType), f.ReceivedAt.Format(time.RFC3339Nano), len(f.Data))
	}
}
