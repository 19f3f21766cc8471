package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hybridsearch/engine/internal/config"
	"github.com/hybridsearch/engine/internal/logging"
)

func main() {
	configDir := flag.String("config-dir", "", "directory containing .hybridsearch.yaml or .hybridsearch.yml (empty uses built-in defaults)")
	store := flag.String("store", "default", "store name to wire this process for")
	flag.Parse()

	logger, closeLog, err := logging.Setup(logging.DefaultConfig())
	if err != nil {
		os.Exit(1)
	}
	defer closeLog()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Error("load_config_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine, err := NewEngine(cfg, *store, logger)
	if err != nil {
		logger.Error("engine_init_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("engine_close_failed", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Start(ctx, nil)
	logger.Info("engine_ready", slog.String("store", *store))

	<-ctx.Done()
	logger.Info("engine_shutting_down")
}
