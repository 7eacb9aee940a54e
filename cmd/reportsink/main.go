package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportsink/internal/config"
	"reportsink/internal/logger"
	"reportsink/internal/server"
)

func main() {
	var configPath string
	var listenAddr string
	var dbPath string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "YAML config file path.")
	flag.StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config).")
	flag.StringVar(&dbPath, "db", "", "SQLite database path (overrides config).")
	flag.StringVar(&logLevel, "log-level", "", "Log level (overrides config).")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Keys can come from the environment so they stay out of config files.
	if v := os.Getenv("REPORTSINK_INGEST_KEY"); v != "" {
		cfg.IngestKey = v
	}
	if v := os.Getenv("REPORTSINK_ADMIN_KEY"); v != "" {
		cfg.AdminKey = v
	}

	logger.Init(cfg.LogLevel)

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("server init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		logger.Logger.Info().Msg("shutting down")
		cancel()
	case err := <-done:
		if err != nil {
			log.Fatalf("server exited: %v", err)
		}
		return
	}

	// give graceful shutdown some time
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Logger.Warn().Msg("shutdown timeout exceeded")
	}
}
