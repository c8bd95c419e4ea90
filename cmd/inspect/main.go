package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"orderpipeline/internal/application/factories/infrastructure"
	"orderpipeline/internal/config"
	"orderpipeline/internal/logger"
)

// inspect prints the latest entries of the Postgres projection.
func main() {
	limit := flag.Int("limit", 5, "number of entries to show")
	flag.Parse()

	log := logger.New(os.Stderr, "info")

	cfg, err := config.New()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, log, *limit); err != nil {
		log.Error("inspect failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, limit int) error {
	infraFactory := infrastructure.NewFactory(cfg, log)
	defer infraFactory.Close()

	repo, err := infraFactory.ProjectionRepository(ctx)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	records, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return fmt.Errorf("list projection entries: %w", err)
	}

	fmt.Println("--- Projection ---")
	for _, rec := range records {
		fmt.Printf("Key: %s | Version: %d | Updated: %s | Value: %s\n",
			rec.Key, rec.Version, rec.UpdatedAt.Format("2006-01-02 15:04:05"), rec.Value)
	}
	return nil
}
