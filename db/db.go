// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	"github.com/jmoiron/sqlx"
)

// Connect opens a pooled Postgres handle for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	dbx, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	dbx.SetMaxOpenConns(20)
	dbx.SetMaxIdleConns(5)
	dbx.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pingCtx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return dbx, nil
}

// Migrate applies idempotent schema changes for all required tables and indices.
// It mirrors db/migrations and is the fallback when versioned migrations cannot run.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE TABLE IF NOT EXISTS users (
			wallet_address TEXT PRIMARY KEY,
			username TEXT UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			banner_url TEXT NOT NULL DEFAULT '',
			ens_name TEXT NOT NULL DEFAULT '',
			ens_checked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			slug TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS streams (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			creator_address TEXT NOT NULL REFERENCES users(wallet_address) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
			vendor_stream_id TEXT UNIQUE,
			stream_key TEXT NOT NULL DEFAULT '',
			stream_key_version INTEGER NOT NULL DEFAULT 0,
			playback_id TEXT NOT NULL DEFAULT '',
			asset_id TEXT NOT NULL DEFAULT '',
			asset_playback_id TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			is_live BOOLEAN NOT NULL DEFAULT FALSE,
			viewer_count INTEGER NOT NULL DEFAULT 0,
			view_count BIGINT NOT NULL DEFAULT 0,
			like_count INTEGER NOT NULL DEFAULT 0,
			scheduled_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			mint_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			mint_status TEXT NOT NULL DEFAULT '',
			token_uri TEXT NOT NULL DEFAULT '',
			contract_address TEXT NOT NULL DEFAULT '',
			token_id TEXT NOT NULL DEFAULT '',
			mint_tx_hash TEXT NOT NULL DEFAULT '',
			minted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			stream_id UUID NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			sender_address TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS stream_likes (
			stream_id UUID NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			user_address TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (stream_id, user_address)
		)`,
		`CREATE TABLE IF NOT EXISTS stream_views (
			stream_id UUID NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			viewer_address TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (stream_id, viewer_address)
		)`,
		`CREATE TABLE IF NOT EXISTS follows (
			follower_address TEXT NOT NULL,
			following_address TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (follower_address, following_address),
			CHECK (follower_address <> following_address)
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id BIGSERIAL PRIMARY KEY,
			reviewer_address TEXT NOT NULL,
			reviewee_address TEXT NOT NULL,
			stream_id UUID REFERENCES streams(id) ON DELETE CASCADE,
			rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (reviewer_address <> reviewee_address)
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_creator ON streams(creator_address, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_live ON streams(is_live, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_category ON streams(category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_stream_id ON chat_messages(stream_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_following ON follows(following_address)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_reviewee ON reviews(reviewee_address, created_at DESC)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// GetKV returns the value stored under key and whether it exists.
func GetKV(ctx context.Context, db *sql.DB, key string) (string, bool, error) {
	var v sql.NullString
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

// SetKV upserts a kv row.
func SetKV(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO kv(key,value,updated_at) VALUES($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// SetKVTime stores t in RFC3339 form, the format background jobs use for their last-run markers.
func SetKVTime(ctx context.Context, db *sql.DB, key string, t time.Time) error {
	return SetKV(ctx, db, key, t.UTC().Format(time.RFC3339))
}

// GetKVTime parses a timestamp written by SetKVTime. Missing keys return the zero time.
func GetKVTime(ctx context.Context, db *sql.DB, key string) (time.Time, error) {
	v, ok, err := GetKV(ctx, db, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse kv %s: %w", key, err)
	}
	return t, nil
}
