// Package catalog keeps an index of recorded sessions in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tuw-telemetry/internal/session"
	"tuw-telemetry/internal/wire"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const upMarker = "-- +migrate Up"

// Store persists session.Info rows. It implements session.Observer so a
// controller can report into it directly.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens the catalog at path and applies pending migrations.
func Open(path string, log *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		var n int
		if err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		up := string(content)
		if i := strings.Index(up, upMarker); i >= 0 {
			up = up[i+len(upMarker):]
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Put inserts or replaces the row for info.
func (s *Store) Put(ctx context.Context, info session.Info) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("catalog is not configured")
	}
	if info.ID == "" {
		return fmt.Errorf("session id is required")
	}
	var ended int64
	if !info.EndedAt.IsZero() {
		ended = info.EndedAt.UTC().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, path, area_id, display_name, started_at, ended_at, frames)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	path = excluded.path,
	ended_at = excluded.ended_at,
	frames = excluded.frames
`,
		info.ID,
		info.Path,
		info.Metadata.AreaID,
		info.Metadata.DisplayName,
		info.StartedAt.UTC().UnixMilli(),
		ended,
		info.Frames,
	)
	if err != nil {
		return fmt.Errorf("put session %s: %w", info.ID, err)
	}
	return nil
}

// Get returns the session with id. The bool is false when it is unknown.
func (s *Store) Get(ctx context.Context, id string) (session.Info, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, path, area_id, display_name, started_at, ended_at, frames
FROM sessions WHERE id = ?`, id)
	info, err := scanInfo(row)
	if err == sql.ErrNoRows {
		return session.Info{}, false, nil
	}
	if err != nil {
		return session.Info{}, false, fmt.Errorf("get session %s: %w", id, err)
	}
	return info, true, nil
}

// List returns up to limit sessions, newest first. An empty area lists all.
func (s *Store) List(ctx context.Context, area string, limit int) ([]session.Info, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, path, area_id, display_name, started_at, ended_at, frames
FROM sessions
WHERE ? = '' OR area_id = ?
ORDER BY started_at DESC, id
LIMIT ?`, area, area, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []session.Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(sc scanner) (session.Info, error) {
	var (
		info           session.Info
		meta           wire.StreamMetadata
		started, ended int64
	)
	if err := sc.Scan(&info.ID, &info.Path, &meta.AreaID, &meta.DisplayName, &started, &ended, &info.Frames); err != nil {
		return session.Info{}, err
	}
	info.Metadata = meta
	info.StartedAt = time.UnixMilli(started).UTC()
	if ended > 0 {
		info.EndedAt = time.UnixMilli(ended).UTC()
	}
	return info, nil
}

// SessionStarted implements session.Observer.
func (s *Store) SessionStarted(info session.Info) { s.observe("started", info) }

// SessionEnded implements session.Observer.
func (s *Store) SessionEnded(info session.Info) { s.observe("ended", info) }

func (s *Store) observe(what string, info session.Info) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Put(ctx, info); err != nil {
		s.log.Warn("catalog update failed", "event", what, "session", info.ID, "error", err)
	}
}
