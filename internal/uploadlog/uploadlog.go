// Package uploadlog persists the append-only history of published clips.
// The log is the source of truth for an account's upload sequence: the next
// part number is always 1 + the number of recorded uploads.
package uploadlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"clipcast/internal/platform"
	logx "clipcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Entry is one recorded publish.
type Entry struct {
	ID         int64             `json:"id"`
	Platform   platform.Platform `json:"platform"`
	Account    string            `json:"account"`
	Title      string            `json:"title"`
	RemoteID   string            `json:"remote_id,omitempty"`
	UploadedAt time.Time         `json:"uploaded_at"`
}

// Log is the sqlite-backed upload history.
type Log struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the log database at path and applies
// migrations.
func Open(path string, log logx.Logger) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("upload log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	l := &Log{db: db, log: log}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, string(b))
	return err
}

func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append records one publish. The zero UploadedAt means now.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO uploads(platform, account, title, remote_id, uploaded_at)
		 VALUES(?,?,?,?,?)`,
		string(e.Platform), e.Account, e.Title, nullStr(e.RemoteID),
		e.UploadedAt.Format(time.RFC3339Nano),
	)
	return err
}

// Count returns how many uploads the account has recorded.
func (l *Log) Count(ctx context.Context, p platform.Platform, account string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM uploads WHERE platform = ? AND account = ?`,
		string(p), account,
	).Scan(&n)
	return n, err
}

// Recent returns the newest entries for the account, most recent first.
func (l *Log) Recent(ctx context.Context, p platform.Platform, account string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, platform, account, title, remote_id, uploaded_at
		 FROM uploads WHERE platform = ? AND account = ?
		 ORDER BY id DESC LIMIT ?`,
		string(p), account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			plat   string
			remote sql.NullString
			at     string
		)
		if err := rows.Scan(&e.ID, &plat, &e.Account, &e.Title, &remote, &at); err != nil {
			return nil, err
		}
		e.Platform = platform.Platform(plat)
		e.RemoteID = remote.String
		if ts, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.UploadedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Vacuum reclaims free pages. Run from maintenance, never from the hot path.
func (l *Log) Vacuum(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "VACUUM")
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
