package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"streak-backend/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Options tune transaction retries
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	// InitialBackoff is the first retry delay; it doubles on each attempt
	InitialBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 50 * time.Millisecond
	}
	return o
}

// DB is the persistence collaborator. All reads and writes go through InTx.
type DB struct {
	pool   *pgxpool.Pool
	sqlite *sql.DB
	opts   Options
	now    func() time.Time
}

// OpenPostgres connects to PostgreSQL and runs migrations
func OpenPostgres(ctx context.Context, dsn string, opts Options) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool, opts: opts.withDefaults(), now: time.Now}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) the SQLite database at path and runs migrations
func OpenSQLite(ctx context.Context, path string, opts Options) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return openSQLite(ctx, "file:"+path+"?_txlock=immediate", opts)
}

// OpenMemory opens an in-memory SQLite database for testing
func OpenMemory(ctx context.Context) (*DB, error) {
	return openSQLite(ctx, ":memory:", Options{})
}

func openSQLite(ctx context.Context, dsn string, opts Options) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	db := &DB{sqlite: sqlDB, opts: opts.withDefaults(), now: time.Now}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Driver returns "postgres" or "sqlite"
func (db *DB) Driver() string {
	if db.pool != nil {
		return "postgres"
	}
	return "sqlite"
}

// Ping checks connectivity
func (db *DB) Ping(ctx context.Context) error {
	if db.pool != nil {
		return db.pool.Ping(ctx)
	}
	return db.sqlite.PingContext(ctx)
}

// Close releases the underlying connections
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
		return
	}
	db.sqlite.Close()
}

// InTx runs fn inside one transaction. fn may run more than once: retryable
// storage failures are retried with exponential backoff up to MaxAttempts,
// each attempt bounded by Timeout. Nothing is committed unless fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(r *Repos) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = db.opts.InitialBackoff
	b.Multiplier = 2

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := db.attempt(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}

		var se *models.StorageError
		if errors.As(err, &se) && se.Retryable && ctx.Err() == nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("Retrying transaction")
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(db.opts.MaxAttempts)))
	if err == nil {
		return nil
	}

	var se *models.StorageError
	if errors.As(err, &se) && se.Retryable {
		return &models.StorageError{Op: se.Op, Err: fmt.Errorf("gave up after %d attempts: %w", attempt, se.Err)}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return &models.StorageError{Op: "transaction", Err: ctxErr}
	}
	return err
}

func (db *DB) attempt(ctx context.Context, fn func(r *Repos) error) error {
	ctx, cancel := context.WithTimeout(ctx, db.opts.Timeout)
	defer cancel()

	if db.pool != nil {
		tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return storageErr("begin", err)
		}
		defer tx.Rollback(context.Background())

		if err := fn(newRepos(pgxQuerier{tx}, db.now)); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return storageErr("commit", err)
		}
		return nil
	}

	tx, err := db.sqlite.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback()

	if err := fn(newRepos(sqlQuerier{tx}, db.now)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}
