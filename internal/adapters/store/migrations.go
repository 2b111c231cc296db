package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration pairs a schema version with its up and down SQL.
type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

// The four event tables carry identical columns so load and cleanup
// code can treat them uniformly; only the payload JSON differs by kind.
var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS formations (
	id TEXT PRIMARY KEY,
	video_timestamp INTEGER NOT NULL CHECK(video_timestamp >= 0),
	ingest_timestamp INTEGER NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	user_created INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS formations_video_ts ON formations(video_timestamp);

CREATE TABLE IF NOT EXISTS triangle_calls (
	id TEXT PRIMARY KEY,
	video_timestamp INTEGER NOT NULL CHECK(video_timestamp >= 0),
	ingest_timestamp INTEGER NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	user_created INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS triangle_calls_video_ts ON triangle_calls(video_timestamp);

CREATE TABLE IF NOT EXISTS coaching_alerts (
	id TEXT PRIMARY KEY,
	video_timestamp INTEGER NOT NULL CHECK(video_timestamp >= 0),
	ingest_timestamp INTEGER NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	user_created INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS coaching_alerts_video_ts ON coaching_alerts(video_timestamp);

CREATE TABLE IF NOT EXISTS mel_scores (
	id TEXT PRIMARY KEY,
	video_timestamp INTEGER NOT NULL CHECK(video_timestamp >= 0),
	ingest_timestamp INTEGER NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	user_created INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS mel_scores_video_ts ON mel_scores(video_timestamp);
`,
		DownSQL: `
DROP TABLE IF EXISTS mel_scores;
DROP TABLE IF EXISTS coaching_alerts;
DROP TABLE IF EXISTS triangle_calls;
DROP TABLE IF EXISTS formations;
`,
	},
}

// ApplyMigrations brings the schema up to the latest version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
