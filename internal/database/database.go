package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benrobertsonio/marcoswift.com/internal/config"
	"github.com/benrobertsonio/marcoswift.com/internal/models"
)

// querier is the subset of *pgxpool.Pool the queries below need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	pool *pgxpool.Pool
	q    querier
}

func New(cfg *config.Config) (*DB, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ctx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, q: pool}, nil
}

// Migrate idempotently creates the tables, and the ip_address column that
// older subscriber tables were created without.
func (db *DB) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS prologue_subscribers (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			ip_address TEXT,
			subscribed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`ALTER TABLE prologue_subscribers
			ADD COLUMN IF NOT EXISTS ip_address TEXT`,
		`CREATE TABLE IF NOT EXISTS rate_limits (
			id SERIAL PRIMARY KEY,
			ip_address TEXT NOT NULL,
			attempted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS rate_limits_ip_attempted_idx
			ON rate_limits (ip_address, attempted_at)`,
	}

	for _, query := range queries {
		if _, err := db.q.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// CountRecentAttempts returns how many attempts sourceAddress made within
// the trailing window.
func (db *DB) CountRecentAttempts(
	ctx context.Context,
	sourceAddress string,
	window time.Duration,
) (int, error) {
	var count int
	err := db.q.QueryRow(
		ctx,
		"SELECT COUNT(*) FROM rate_limits "+
			"WHERE ip_address = $1 "+
			"AND attempted_at > NOW() - make_interval(secs => $2)",
		sourceAddress,
		window.Seconds(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (db *DB) RecordAttempt(
	ctx context.Context,
	sourceAddress string,
) (*models.RateLimitAttempt, error) {
	a := models.RateLimitAttempt{SourceAddress: sourceAddress}
	err := db.q.QueryRow(
		ctx,
		"INSERT INTO rate_limits (ip_address) VALUES ($1) "+
			"RETURNING id, attempted_at",
		sourceAddress,
	).Scan(&a.ID, &a.AttemptedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}
	return &a, nil
}

// PruneAttempts deletes attempts older than retention and reports how many
// rows went away.
func (db *DB) PruneAttempts(
	ctx context.Context,
	retention time.Duration,
) (int64, error) {
	result, err := db.q.Exec(
		ctx,
		"DELETE FROM rate_limits "+
			"WHERE attempted_at < NOW() - make_interval(secs => $1)",
		retention.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	return result.RowsAffected(), nil
}

// AddSubscriber inserts the subscriber unless the email is already present.
// The returned bool is true only when a new row was written; a duplicate is
// not an error.
func (db *DB) AddSubscriber(
	ctx context.Context,
	email string,
	sourceAddress string,
) (*models.Subscriber, bool, error) {
	s := models.Subscriber{Email: email, SourceAddress: sourceAddress}
	err := db.q.QueryRow(
		ctx,
		"INSERT INTO prologue_subscribers (email, ip_address) "+
			"VALUES ($1, $2) "+
			"ON CONFLICT (email) DO NOTHING "+
			"RETURNING id, subscribed_at",
		email,
		sourceAddress,
	).Scan(&s.ID, &s.SubscribedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to add subscriber: %w", err)
	}

	return &s, true, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) Close(ctx context.Context) {
	db.pool.Close()
}
