package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/ghostwalkerj/champagneroom-app-sub000/docs"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/app"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/config"
)

// @title Champagne Room API
// @version 1.0
// @description Lifecycle service for ticketed live shows: box office, payments, escrow and payouts.
// @host localhost:8080
// @BasePath /
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
