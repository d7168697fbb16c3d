package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grabwire/grabwire/internal/config"
	"github.com/grabwire/grabwire/internal/discovery"
	"github.com/grabwire/grabwire/internal/events"
	"github.com/grabwire/grabwire/internal/handlers"
	"github.com/grabwire/grabwire/internal/netmon"
	"github.com/grabwire/grabwire/internal/pagewatch"
	"github.com/grabwire/grabwire/internal/reconnect"
	"github.com/grabwire/grabwire/internal/serverclient"
)

var version = "dev"

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("grabwire %s\n", version)
		os.Exit(0)
	}

	if len(os.Args) > 1 && os.Args[1] == "config" {
		config.HandleConfigCommand(cfg)
		os.Exit(0)
	}

	if len(os.Args) > 1 && (os.Args[1] == "status" || os.Args[1] == "rescan") {
		handleAgentCommand(cfg, os.Args[1])
		os.Exit(0)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		slog.Error("cannot create state dir", "err", err)
		os.Exit(1)
	}

	runAgent(cfg)
}

func runAgent(cfg *config.RuntimeConfig) {
	slog.Info("🔌 grabwire agent", "listen", cfg.ListenAddr(),
		"range", fmt.Sprintf("%d-%d", cfg.PortRangeStart, cfg.PortRangeEnd))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := discovery.NewFileCache(cfg.StateDir)
	prober := discovery.NewHTTPProber(cfg.ServerHost, cfg.HealthPath, cfg.ExpectedApp, cfg.ProbeTimeout)
	scanner := discovery.NewScanner(prober, cfg.ScanBatchSize)
	engine := discovery.NewEngine(cache, prober, scanner, cfg.PortRangeStart, cfg.PortRangeEnd)

	hub := events.NewHub()
	client := serverclient.New(cfg.ServerHost)
	ctrl := reconnect.NewController(engine, prober, hub, client,
		cfg.BackoffFloor, cfg.BackoffCap, cfg.HealthInterval)

	var watcher *pagewatch.Watcher
	if cfg.CdpURL != "" {
		watcher = pagewatch.New(cfg.CdpURL, cfg.WatchInterval, hub)
		go watcher.Run(ctx)
	} else {
		slog.Info("page watching disabled, CDP_URL not set")
	}

	go ctrl.Run(ctx)

	monitor := netmon.New(cfg.NetworkInterval, ctrl.OnNetworkOnline)
	go monitor.Run(ctx)

	mux := http.NewServeMux()
	var videos handlers.VideoSource
	if watcher != nil {
		videos = watcher
	}
	h := handlers.New(cfg, ctrl, client, hub, videos)
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handlers.RequestIDMiddleware(handlers.LoggingMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("agent listening", "addr", cfg.ListenAddr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}
