// Package store persists events to an embedded sqlite database so a
// restart can re-seed the cache without refetching the remote backlog.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/pkg/metrics"
)

// Store wraps the sqlite handle. The in-memory cache stays
// authoritative; every method here is best effort for the caller.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with WAL mode
// and a single write connection, then applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// tableFor maps an event kind to its table.
func tableFor(kind model.Kind) (string, error) {
	switch kind {
	case model.KindFormation:
		return "formations", nil
	case model.KindTriangleCall:
		return "triangle_calls", nil
	case model.KindCoachingAlert:
		return "coaching_alerts", nil
	case model.KindMELScore:
		return "mel_scores", nil
	default:
		return "", fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
	}
}

// payloadOf extracts the kind-specific payload for serialization.
func payloadOf(e *model.Event) (interface{}, error) {
	switch e.Kind {
	case model.KindFormation:
		return e.Formation, nil
	case model.KindTriangleCall:
		return e.Call, nil
	case model.KindCoachingAlert:
		return e.Alert, nil
	case model.KindMELScore:
		return e.MEL, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownKind, e.Kind)
	}
}

// SaveEvent upserts an event into its kind's table. Saving the same
// event twice is a no-op at the data level.
func (s *Store) SaveEvent(ctx context.Context, e *model.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreSaveLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if e == nil {
		return model.ErrNilEvent
	}
	table, err := tableFor(e.Kind)
	if err != nil {
		return err
	}
	payload, err := payloadOf(e)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s(id, video_timestamp, ingest_timestamp, confidence, user_created, payload)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	video_timestamp=excluded.video_timestamp,
	ingest_timestamp=excluded.ingest_timestamp,
	confidence=excluded.confidence,
	user_created=excluded.user_created,
	payload=excluded.payload`, table),
		e.ID, e.VideoTimestamp, e.IngestTimestamp, e.Confidence, boolInt(e.UserCreated), string(raw))
	if err != nil {
		return fmt.Errorf("save event %s: %w", e.ID, err)
	}
	return nil
}

// LoadRecent returns up to limit newest events per kind, ordered by
// video timestamp descending within each kind. Rows whose payload no
// longer unmarshals are skipped.
func (s *Store) LoadRecent(ctx context.Context, limit int) ([]*model.Event, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLoadLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if limit <= 0 {
		return nil, nil
	}

	var out []*model.Event
	for _, kind := range model.Kinds() {
		events, err := s.loadKind(ctx, kind, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (s *Store) loadKind(ctx context.Context, kind model.Kind, limit int) ([]*model.Event, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, video_timestamp, ingest_timestamp, confidence, user_created, payload
FROM %s ORDER BY video_timestamp DESC LIMIT ?`, table), limit)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*model.Event
	for rows.Next() {
		var (
			e           model.Event
			userCreated int
			raw         string
		)
		if err := rows.Scan(&e.ID, &e.VideoTimestamp, &e.IngestTimestamp, &e.Confidence, &userCreated, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		e.Kind = kind
		e.UserCreated = userCreated != 0
		if err := unmarshalPayload(&e, raw); err != nil {
			continue
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func unmarshalPayload(e *model.Event, raw string) error {
	switch e.Kind {
	case model.KindFormation:
		e.Formation = &model.FormationPayload{}
		return json.Unmarshal([]byte(raw), e.Formation)
	case model.KindTriangleCall:
		e.Call = &model.TriangleCallPayload{}
		return json.Unmarshal([]byte(raw), e.Call)
	case model.KindCoachingAlert:
		e.Alert = &model.AlertPayload{}
		return json.Unmarshal([]byte(raw), e.Alert)
	case model.KindMELScore:
		e.MEL = &model.MELPayload{}
		return json.Unmarshal([]byte(raw), e.MEL)
	default:
		return fmt.Errorf("%w: %q", model.ErrUnknownKind, e.Kind)
	}
}

// Cleanup deletes rows whose ingest timestamp is older than the
// retention cutoff. Rows marked user_created survive regardless of age.
// Returns the number of rows removed.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()

	var total int64
	for _, kind := range model.Kinds() {
		table, err := tableFor(kind)
		if err != nil {
			return total, err
		}
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE ingest_timestamp < ? AND user_created = 0`, table), cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	if total > 0 {
		metrics.RecordStoreCleanupRows(total)
	}
	return total, nil
}

// CountKind returns the number of persisted rows for a kind.
func (s *Store) CountKind(ctx context.Context, kind model.Kind) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
