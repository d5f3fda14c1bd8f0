// Package store is the data-access layer: users, categories, streams, chat, likes, views,
// follows and reviews. Queries are built with squirrel and scanned with sqlx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/onnwee/livecast/backend/crypto"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Postgres error codes the store translates.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store wraps a Postgres handle. Stream keys are sealed with Keys when it is non-nil.
type Store struct {
	db   *sqlx.DB
	keys *crypto.Sealer
}

func New(db *sqlx.DB, keys *crypto.Sealer) *Store {
	return &Store{db: db, keys: keys}
}

// DB exposes the underlying handle for health checks and kv helpers.
func (s *Store) DB() *sqlx.DB { return s.db }

type txKey struct{}

// WithTx runs fn in a transaction; store calls made with the ctx passed to fn join it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("rollback failed", slog.Any("err", rbErr), slog.String("component", "store"))
		}
		return err
	}
	return tx.Commit()
}

// conn returns the transaction carried by ctx, or the pool.
func (s *Store) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func (s *Store) get(ctx context.Context, dest any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %w", err)
	}
	return mapErr(sqlx.GetContext(ctx, s.conn(ctx), dest, query, args...))
}

func (s *Store) selectAll(ctx context.Context, dest any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %w", err)
	}
	return mapErr(sqlx.SelectContext(ctx, s.conn(ctx), dest, query, args...))
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build sql query: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

// mapErr folds driver errors into ErrNotFound / ErrConflict while keeping the original in the chain.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgCheckViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func (p Page) normalize() (uint64, uint64) {
	l := p.Limit
	if l <= 0 {
		l = defaultLimit
	}
	if l > maxLimit {
		l = maxLimit
	}
	o := p.Offset
	if o < 0 {
		o = 0
	}
	return uint64(l), uint64(o)
}
