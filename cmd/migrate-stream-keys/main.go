// Package main seals stream keys that were stored before ENCRYPTION_KEY was configured.
//
// Usage:
//
//	migrate-stream-keys [--dry-run]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte key (required)
//
// Example:
//
//	export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	./migrate-stream-keys --dry-run
//	./migrate-stream-keys
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/onnwee/livecast/backend/crypto"
	"github.com/onnwee/livecast/backend/db"
	"github.com/onnwee/livecast/backend/store"
)

// keySealer is the part of the store this tool drives.
type keySealer interface {
	ListPlainStreamKeys(ctx context.Context) ([]store.Stream, error)
	SealStreamKey(ctx context.Context, st *store.Stream) error
}

type summary struct {
	Total    int
	Migrated int
	Errors   int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	keys, err := crypto.NewSealer(os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		slog.Error("ENCRYPTION_KEY is required for migration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close() //nolint:errcheck // process exit

	sum, err := migrateStreamKeys(ctx, store.New(database, keys), *dryRun)
	if err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("migration completed successfully", slog.Int("migrated", sum.Migrated))
}

// migrateStreamKeys seals every plaintext stream key. Rows that fail are logged and counted;
// the run continues with the rest.
func migrateStreamKeys(ctx context.Context, s keySealer, dryRun bool) (summary, error) {
	streams, err := s.ListPlainStreamKeys(ctx)
	if err != nil {
		return summary{}, fmt.Errorf("list plaintext stream keys: %w", err)
	}
	sum := summary{Total: len(streams)}
	if sum.Total == 0 {
		slog.Info("no plaintext stream keys found")
		return sum, nil
	}
	slog.Info("found plaintext stream keys", slog.Int("count", sum.Total), slog.Bool("dry_run", dryRun))

	for i := range streams {
		st := &streams[i]
		logger := slog.With(slog.String("stream_id", st.ID), slog.Int("index", i+1), slog.Int("total", sum.Total))
		if dryRun {
			logger.Info("would seal stream key (dry-run)")
			sum.Migrated++
			continue
		}
		if err := s.SealStreamKey(ctx, st); err != nil {
			logger.Error("failed to seal stream key", slog.Any("error", err))
			sum.Errors++
			continue
		}
		sum.Migrated++
	}

	slog.Info("migration summary",
		slog.Int("total", sum.Total),
		slog.Int("migrated", sum.Migrated),
		slog.Int("errors", sum.Errors),
		slog.Bool("dry_run", dryRun))
	if sum.Errors > 0 {
		return sum, fmt.Errorf("migration completed with %d errors", sum.Errors)
	}
	return sum, nil
}
