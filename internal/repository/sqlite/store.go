package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	author TEXT NOT NULL,
	environment TEXT NOT NULL DEFAULT '',
	project TEXT NOT NULL DEFAULT '',
	related_object_type TEXT NOT NULL DEFAULT '',
	related_object_id TEXT NOT NULL DEFAULT '',
	log TEXT NOT NULL
);
`

// indexes for paging (newest first) and the environment/project filters
const indexes = `
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_audit_log_env ON audit_log(environment, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_log_project ON audit_log(project, created_at DESC);
`

// timeLayout has a fixed-width fraction so that text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = "id, created_at, author, environment, project, related_object_type, related_object_id, log"

var _ app.AuditRepository = (*Store)(nil)

// Store implements app.AuditRepository using SQLite.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at path (creating parent dirs and schema).
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if _, err := db.Exec(indexes); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite indexes: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection. Call on shutdown for clean exit.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// parseTime parses RFC3339Nano or returns zero time and error.
func parseTime(s, context string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: parse timestamp %q: %w", context, s, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Append implements app.AuditRepository.
func (s *Store) Append(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == "" {
		return fmt.Errorf("audit entry id is required")
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("audit entry %s: created_at is required", e.ID)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_log ("+selectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, formatTime(e.CreatedAt), e.Author, e.Environment, e.Project, e.RelatedObjectType, e.RelatedObjectID, e.Log)
	if err != nil {
		return fmt.Errorf("audit_log insert: %w", err)
	}
	return nil
}

// List implements app.AuditRepository. q is expected to be normalized.
func (s *Store) List(ctx context.Context, q domain.Query) ([]domain.AuditEntry, int, error) {
	where, args := whereClause(q)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit_log count: %w", err)
	}

	limit := q.PageSize
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	pageArgs := append(append([]any{}, args...), limit, q.Offset())
	entries, err := s.query(ctx, "SELECT "+selectColumns+" FROM audit_log"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Recent implements app.AuditRepository.
func (s *Store) Recent(ctx context.Context, n int) ([]domain.AuditEntry, error) {
	if n <= 0 {
		return []domain.AuditEntry{}, nil
	}
	return s.query(ctx, "SELECT "+selectColumns+" FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?", n)
}

func (s *Store) query(ctx context.Context, stmt string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("audit_log: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		var ca string
		if err := rows.Scan(&e.ID, &ca, &e.Author, &e.Environment, &e.Project, &e.RelatedObjectType, &e.RelatedObjectID, &e.Log); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(ca, "audit_log"); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit_log iteration: %w", err)
	}
	return entries, nil
}

func whereClause(q domain.Query) (string, []any) {
	var conds []string
	var args []any
	if q.Environment != "" {
		conds = append(conds, "environment = ?")
		args = append(args, q.Environment)
	}
	if q.Project != "" {
		conds = append(conds, "project = ?")
		args = append(args, q.Project)
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		conds = append(conds, `(log LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
