package main

import (
	"log/slog"
	"os"

	"absence-api/internal/app"
	"absence-api/internal/logger"
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	application, err := app.New(log)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
