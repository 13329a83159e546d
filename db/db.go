// Package db implements regrader.Store on PostgreSQL.
//
// Tables used: submissions, judgings, languages, users, contests,
// contest_members (contest to user category), problems, contest_problems,
// testcases, checkers, graders, scoreboard_contestant and scoreboard_admin.
// Besides its judging columns, submissions carries the queue state: claimed_by,
// claimed_at, failed_attempts (integer, default 0) and retry_after.
// Creating them is left to the surrounding application.
package db

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/exaring/otelpgx"
	"github.com/fushar/regrader"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func init() {
	// Set dollar placeholder format for squirrel
	sq.StatementBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

var _ regrader.Store = &DB{}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds every statement that can run either on the pool or inside a transaction.
type queries struct {
	conn dbtx
}

var _ regrader.JudgeTx = &queries{}

type DB struct {
	*queries
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not reach database: %w", err)
	}
	return &DB{queries: &queries{conn: pool}, pool: pool}, nil
}

func (s *DB) Close() error {
	s.pool.Close()
	return nil
}

func (s *DB) InTx(ctx context.Context, fn func(regrader.JudgeTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&queries{conn: tx})
	})
}

// collectOne maps a missing row to regrader.ErrNotFound.
func collectOne[T any](rows pgx.Rows, what string) (*T, error) {
	v, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, regrader.WrapStatus(err, 404, "%s not found", what)
		}
		return nil, err
	}
	return v, nil
}

func collectAll[T any](rows pgx.Rows) ([]*T, error) {
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
}

func (s *queries) query(ctx context.Context, b sq.Sqlizer) (pgx.Rows, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return s.conn.Query(ctx, sql, args...)
}

func (s *queries) exec(ctx context.Context, b sq.Sqlizer) (pgconn.CommandTag, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return s.conn.Exec(ctx, sql, args...)
}
