package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/onnwee/livecast/backend/db"
)

// SetupTestDB connects to TEST_PG_DSN, migrates, and truncates every application table.
// It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(ctx, database.DB); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	_, err = database.ExecContext(ctx, `TRUNCATE reviews, follows, stream_views, stream_likes, chat_messages, streams, categories, users, kv RESTART IDENTITY CASCADE`)
	if err != nil {
		_ = database.Close()
		t.Fatalf("failed to truncate tables: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}

// Addr returns a deterministic lower-case wallet address for n.
func Addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}
