// Package sqliteledger keeps export job history in a SQLite database.
package sqliteledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/framegrab/pkg/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger implements ports.JobLedger.
type Ledger struct {
	conn   *sql.DB
	logger ports.Logger
}

// Open opens or creates the database at path and applies migrations.
func Open(path string, logger ports.Logger) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	l := &Ledger{conn: conn, logger: logger.WithComponent("ledger")}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if l.applied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := l.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := l.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		l.logger.Debug("Applied migration %s", name)
	}
	return nil
}

func (l *Ledger) applied(name string) bool {
	var one int
	if err := l.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&one); err != nil {
		return false
	}
	err := l.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&one)
	return err == nil
}

// Record implements ports.JobLedger. Recording the same id twice keeps the
// latest outcome.
func (l *Ledger) Record(ctx context.Context, rec ports.JobRecord) error {
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, description, kind, archive_name, entries, skipped, conflicts, bytes, state, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entries = excluded.entries,
			skipped = excluded.skipped,
			conflicts = excluded.conflicts,
			bytes = excluded.bytes,
			state = excluded.state,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		rec.ID, rec.Description, rec.Kind, rec.ArchiveName,
		rec.Entries, rec.Skipped, rec.Conflicts, rec.Bytes,
		string(rec.State), rec.Error,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", rec.ID, err)
	}
	return nil
}

// Recent implements ports.JobLedger, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]ports.JobRecord, error) {
	rows, err := l.conn.QueryContext(ctx, `
		SELECT id, description, kind, archive_name, entries, skipped, conflicts, bytes, state, error, started_at, finished_at
		FROM jobs ORDER BY finished_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []ports.JobRecord
	for rows.Next() {
		var rec ports.JobRecord
		var state string
		var started, finished int64
		if err := rows.Scan(&rec.ID, &rec.Description, &rec.Kind, &rec.ArchiveName,
			&rec.Entries, &rec.Skipped, &rec.Conflicts, &rec.Bytes,
			&state, &rec.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.State = ports.JobState(state)
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

var _ ports.JobLedger = (*Ledger)(nil)
