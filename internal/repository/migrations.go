package repository

import (
	"context"
	"fmt"
)

type migration struct {
	Version     int
	Description string
	Statements  []string
}

// Dates are stored as YYYY-MM-DD text and timestamps as unix milliseconds so
// the same schema runs on PostgreSQL and SQLite.
var migrations = []migration{
	{
		Version:     1,
		Description: "users and interaction ledger",
		Statements: []string{
			`CREATE TABLE users (
				id          TEXT PRIMARY KEY,
				handle      TEXT NOT NULL DEFAULT '',
				points      BIGINT NOT NULL DEFAULT 0,
				push_token  TEXT,
				created_at  BIGINT NOT NULL,
				updated_at  BIGINT NOT NULL
			)`,
			`CREATE INDEX idx_users_handle ON users(handle)`,
			`CREATE TABLE interactions (
				actor_id    TEXT NOT NULL,
				partner_id  TEXT NOT NULL,
				day         TEXT NOT NULL,
				context     TEXT NOT NULL DEFAULT '',
				created_at  BIGINT NOT NULL,
				PRIMARY KEY (actor_id, partner_id, day, context)
			)`,
			`CREATE INDEX idx_interactions_context_day ON interactions(context, day)`,
			`CREATE INDEX idx_interactions_partner ON interactions(partner_id, actor_id)`,
		},
	},
	{
		Version:     2,
		Description: "streak_pairs: mirrored rows per pair",
		Statements: []string{
			`CREATE TABLE streak_pairs (
				user_id       TEXT NOT NULL,
				partner_id    TEXT NOT NULL,
				streak_count  INTEGER NOT NULL DEFAULT 0 CHECK (streak_count >= 0),
				last_date     TEXT,
				updated_at    BIGINT NOT NULL,
				PRIMARY KEY (user_id, partner_id)
			)`,
			`CREATE INDEX idx_streak_pairs_active ON streak_pairs(streak_count) WHERE streak_count > 0`,
		},
	},
	{
		Version:     3,
		Description: "freeze_windows: mirrored rows per pair",
		Statements: []string{
			`CREATE TABLE freeze_windows (
				user_id     TEXT NOT NULL,
				partner_id  TEXT NOT NULL,
				end_date    TEXT NOT NULL,
				updated_at  BIGINT NOT NULL,
				PRIMARY KEY (user_id, partner_id)
			)`,
		},
	},
	{
		Version:     4,
		Description: "streak_requests: opt-in link requests",
		Statements: []string{
			`CREATE TABLE streak_requests (
				id            TEXT PRIMARY KEY,
				from_user_id  TEXT NOT NULL,
				to_user_id    TEXT NOT NULL,
				created_at    BIGINT NOT NULL,
				UNIQUE (from_user_id, to_user_id)
			)`,
			`CREATE INDEX idx_streak_requests_to ON streak_requests(to_user_id)`,
		},
	},
}

func (db *DB) migrate(ctx context.Context) error {
	if err := db.InTx(ctx, func(r *Repos) error {
		_, err := r.q.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_versions (
				version     INTEGER PRIMARY KEY,
				description TEXT NOT NULL,
				applied_at  BIGINT NOT NULL
			)
		`)
		return err
	}); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		err := db.InTx(ctx, func(r *Repos) error {
			var count int
			if err := r.q.QueryRow(ctx,
				"SELECT COUNT(*) FROM schema_versions WHERE version = $1", m.Version,
			).Scan(&count); err != nil {
				return fmt.Errorf("check migration %d: %w", m.Version, err)
			}
			if count > 0 {
				return nil
			}

			for _, stmt := range m.Statements {
				if _, err := r.q.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
				}
			}

			if _, err := r.q.Exec(ctx,
				"INSERT INTO schema_versions (version, description, applied_at) VALUES ($1, $2, $3)",
				m.Version, m.Description, db.now().UnixMilli(),
			); err != nil {
				return fmt.Errorf("record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// SchemaVersion returns the current schema version
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.InTx(ctx, func(r *Repos) error {
		return r.q.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	})
	return version, err
}
