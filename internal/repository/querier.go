package repository

import (
	"context"
	"database/sql"
	"errors"

	"streak-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// querier is the subset of a transaction the repositories need. Both backends
// accept $N placeholders, so every statement is written once.
type querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	QueryRow(ctx context.Context, query string, args ...any) row
	Query(ctx context.Context, query string, args ...any) (rows, error)
}

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type pgxQuerier struct {
	tx pgx.Tx
}

func (q pgxQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := q.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, storageErr("exec", err)
	}
	return tag.RowsAffected(), nil
}

func (q pgxQuerier) QueryRow(ctx context.Context, query string, args ...any) row {
	return scanRow{q.tx.QueryRow(ctx, query, args...)}
}

func (q pgxQuerier) Query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := q.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query", err)
	}
	return r, nil
}

type sqlQuerier struct {
	tx *sql.Tx
}

func (q sqlQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageErr("exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("rows affected", err)
	}
	return n, nil
}

func (q sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) row {
	return scanRow{q.tx.QueryRowContext(ctx, query, args...)}
}

func (q sqlQuerier) Query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := q.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query", err)
	}
	return sqlRows{r}, nil
}

type sqlRows struct {
	r *sql.Rows
}

func (s sqlRows) Next() bool             { return s.r.Next() }
func (s sqlRows) Scan(dest ...any) error { return s.r.Scan(dest...) }
func (s sqlRows) Err() error             { return s.r.Err() }
func (s sqlRows) Close()                 { s.r.Close() }

// scanRow maps both drivers' no-rows errors to models.ErrNotFound
type scanRow struct {
	r row
}

func (s scanRow) Scan(dest ...any) error {
	err := s.r.Scan(dest...)
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return storageErr("scan", err)
}

func storageErr(op string, err error) error {
	var se *models.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &models.StorageError{Op: op, Err: err, Retryable: retryable(err)}
}

// retryable reports whether a driver error is transient
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		// class 08: connection exception
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
