package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaki95/registry-sync/config"
	"github.com/jaki95/registry-sync/internal/app"
	"github.com/jaki95/registry-sync/internal/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides config)")
	configPath := flag.String("config", "./config/config.yaml", "Path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.Level(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	go services.Scheduler.Start(ctx)

	srv := server.New(cfg, server.Deps{
		Orchestrator: services.Orchestrator,
		Importer:     services.Importer,
		Tracker:      services.Tracker,
		Store:        services.Store,
	})

	slog.Info("Starting registry sync API server", "port", cfg.Server.Port)
	if err := srv.Start(ctx, cfg.Server.Port); err != nil {
		slog.Error("Server failed", "error", err)
		services.Close()
		os.Exit(1)
	}

	<-services.Scheduler.Done()
}
