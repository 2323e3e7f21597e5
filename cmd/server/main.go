package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HMasataka/huddle/internal/config"
	"github.com/HMasataka/huddle/internal/signaling"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "config file path (TOML)")
	addr := flag.String("addr", "", "server address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	level := new(slog.LevelVar)
	slog.SetDefault(config.NewLogger(os.Stdout, cfg.Log, level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		err := config.Watch(ctx, *configPath, func(next config.Config) {
			if l, err := config.ParseLevel(next.Log.Level); err == nil {
				level.Set(l)
			}
		})
		if err != nil {
			slog.Warn("config hot reload disabled", slog.String("error", err.Error()))
		}
	}

	rooms := room.NewRegistry(cfg.RoomOptions())
	media := mediaserver.NewClient(cfg.ClientOptions())
	coord := call.NewCoordinator(rooms, media, cfg.CallOptions())
	s := signaling.NewServer(coord, cfg.ServerOptions())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		slog.Info("signaling server starting",
			slog.String("addr", cfg.Server.Addr),
			slog.String("mediaserver", cfg.MediaServer.URL),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// websocket connections are hijacked, so Shutdown does not wait for them
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.String("error", err.Error()))
		server.Close()
	}
}
