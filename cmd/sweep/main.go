// cmd/sweep/main.go
package main

import (
	"context"
	"flag"
	"libraryhub/internal/app"
	"libraryhub/internal/config"
	"libraryhub/internal/postgres"
	"libraryhub/internal/telemetry"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// sweep sends overdue reminders once and exits; for use under cron or a
// Kubernetes CronJob instead of the API's built-in scheduler.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("overdue sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := app.New(cfg, logger, db)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())

	return a.OverdueSweep().Execute(ctx)
}
