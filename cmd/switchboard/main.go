package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"switchboard/internal/app"
	"switchboard/internal/config"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to $SWITCHBOARD_CONFIG_FILE or switchboard.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = application.Run(ctx)
	stop()
	if err != nil {
		application.Logger.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
