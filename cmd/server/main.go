// Command server runs the catalog search HTTP API and, when enabled, the
// catalog event consumer that keeps the index in sync.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/utafrali/catalogsearch/internal/app"
	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("catalog search exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Tracing.ServiceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	log.Info("catalog search starting",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("search_engine", cfg.SearchEngine),
		slog.Bool("kafka_enabled", cfg.KafkaEnabled),
	)
	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info("catalog search stopped")
	return nil
}
