package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hedgerd/internal/app"
	"hedgerd/internal/config"
	"hedgerd/internal/logger"
)

func main() {
	cfgPath := os.Getenv("HEDGERD_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logFile, err := logger.SetupFile(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("opening log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, broker=%s)", cfg.App.Env, cfg.Broker.BaseURL)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("building app failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := application.Run(ctx); err != nil {
		log.Fatalf("hedgerd exited with error: %v", err)
	}
}
