// Package main is the entry point for the retention sweeper. It periodically
// deletes search_log rows older than the retention window so the analytics
// table stays bounded.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventide-app/eventide/internal/config"
	"github.com/eventide-app/eventide/internal/db"
	"github.com/eventide-app/eventide/internal/middleware"
)

const defaultRetentionHours = 24 * 30

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	interval := flag.Duration("interval", time.Hour, "time between sweeps")
	retentionHours := flag.Int("retention-hours", defaultRetentionHours, "search log retention in hours")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	if *help {
		fmt.Println("Eventide Retention Sweeper")
		fmt.Println()
		fmt.Println("Usage: sweeper [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	retention := time.Duration(*retentionHours) * time.Hour

	if *once {
		if err := sweep(ctx, sqlDB, retention, logger); err != nil {
			logger.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("starting sweeper", "interval", interval.String(), "retention_hours", *retentionHours)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := sweep(ctx, sqlDB, retention, logger); err != nil {
				logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// sweep deletes search_log rows older than the retention window.
func sweep(ctx context.Context, sqlDB *sql.DB, retention time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-retention)
	res, err := sqlDB.ExecContext(ctx,
		`DELETE FROM search_log WHERE searched_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired search_log rows: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	logger.Info("sweep completed", "deleted", deleted, "cutoff", cutoff.UTC().Format(time.RFC3339))
	return nil
}
