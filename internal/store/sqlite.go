package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"whisper.relay/internal/models"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps whispers in a local SQLite file. Writes go through a
// single-connection writer pool so the conditional update in MarkOpened is
// never interleaved with another write.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
}

// NewSQLiteStore opens the database at path with WAL mode and applies the
// embedded migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
	return openSQLite(ctx, dsn)
}

func openSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.PingContext(ctx); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	if err := RunSQLiteMigrations(writer); err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}

	return &SQLiteStore{writer: writer, reader: reader}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, w *models.Whisper) error {
	const query = `
		INSERT INTO whispers (id, author_id, author_username, author_first_name, author_last_name,
			target_handle, secret_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	res, err := s.writer.ExecContext(ctx, query,
		w.ID, w.Author.ID, w.Author.Username, w.Author.FirstName, w.Author.LastName,
		w.TargetHandle, w.SecretText, formatTime(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert whisper: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert whisper: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Whisper, error) {
	const query = `
		SELECT id, author_id, author_username, author_first_name, author_last_name,
			target_handle, secret_text, created_at, opened_at, opened_by
		FROM whispers WHERE id = ?`

	var (
		w         models.Whisper
		createdAt string
		openedAt  sql.NullString
		openedBy  sql.NullInt64
	)
	err := s.reader.QueryRowContext(ctx, query, id).Scan(
		&w.ID,
		&w.Author.ID,
		&w.Author.Username,
		&w.Author.FirstName,
		&w.Author.LastName,
		&w.TargetHandle,
		&w.SecretText,
		&createdAt,
		&openedAt,
		&openedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get whisper: %w", err)
	}

	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if openedAt.Valid {
		at, err := parseTime(openedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse opened_at: %w", err)
		}
		by := openedBy.Int64
		w.OpenedAt = &at
		w.OpenedBy = &by
	}

	return &w, nil
}

func (s *SQLiteStore) MarkOpened(ctx context.Context, id string, openerID int64, at time.Time) (bool, error) {
	const query = `UPDATE whispers SET opened_at = ?, opened_by = ? WHERE id = ? AND opened_at IS NULL`

	res, err := s.writer.ExecContext(ctx, query, formatTime(at), openerID, id)
	if err != nil {
		return false, fmt.Errorf("mark whisper opened: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark whisper opened: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = s.writer.QueryRowContext(ctx, `SELECT 1 FROM whispers WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check whisper: %w", err)
	}
	return false, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.reader.PingContext(ctx)
}

// Close closes both connections and returns the first error.
func (s *SQLiteStore) Close() error {
	var firstErr error
	if err := s.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := s.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
