// Package index maintains a small sqlite index of sealed command records
// so `omnish-recent` can query recent commands without re-reading every
// session's commands.json. It is a cache, not the source of truth: the
// per-session JSON files remain authoritative, and the index can be
// rebuilt from them.
package index

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omnish-dev/omnish/internal/model"
)

// Index wraps a sqlite database recording one row per sealed command.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at path, applying schema if
// needed.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS commands (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	command_line TEXT,
	cwd TEXT,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	exit_code INTEGER,
	output_summary TEXT
);
CREATE INDEX IF NOT EXISTS commands_started_at ON commands(started_at);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert records or replaces rec's row.
func (idx *Index) Upsert(rec model.CommandRecord) error {
	var endedAt *int64
	if rec.EndedAt != nil {
		ms := rec.EndedAt.UnixMilli()
		endedAt = &ms
	}
	_, err := idx.db.Exec(`
INSERT INTO commands (id, session_id, seq, command_line, cwd, started_at, ended_at, exit_code, output_summary)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	command_line=excluded.command_line,
	cwd=excluded.cwd,
	ended_at=excluded.ended_at,
	exit_code=excluded.exit_code,
	output_summary=excluded.output_summary
`, rec.ID, rec.SessionID, rec.Seq, rec.CommandLine, rec.CWD, rec.StartedAt.UnixMilli(), endedAt, rec.ExitCode, rec.OutputSummary)
	if err != nil {
		return fmt.Errorf("index: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the limit most recent commands, newest first.
func (idx *Index) Recent(limit int) ([]model.CommandRecord, error) {
	rows, err := idx.db.Query(`
SELECT id, session_id, seq, command_line, cwd, started_at, ended_at, exit_code, output_summary
FROM commands ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: query recent: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// BySession returns all commands recorded for sessionID, oldest first.
func (idx *Index) BySession(sessionID string) ([]model.CommandRecord, error) {
	rows, err := idx.db.Query(`
SELECT id, session_id, seq, command_line, cwd, started_at, ended_at, exit_code, output_summary
FROM commands WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("index: query by session: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]model.CommandRecord, error) {
	var out []model.CommandRecord
	for rows.Next() {
		var (
			rec               model.CommandRecord
			startedMs         int64
			endedMs, exitCode sql.NullInt64
			commandLine, cwd, summary sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Seq, &commandLine, &cwd, &startedMs, &endedMs, &exitCode, &summary); err != nil {
			return nil, fmt.Errorf("index: scan row: %w", err)
		}
		rec.CommandLine = commandLine.String
		rec.CWD = cwd.String
		rec.OutputSummary = summary.String
		rec.StartedAt = time.UnixMilli(startedMs)
		if endedMs.Valid {
			t := time.UnixMilli(endedMs.Int64)
			rec.EndedAt = &t
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			rec.ExitCode = &code
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
