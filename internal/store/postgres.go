package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"whisper.relay/internal/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore handles whisper persistence in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to databaseURL. Migrations are applied
// separately with RunPostgresMigrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, w *models.Whisper) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO whispers (id, author_id, author_username, author_first_name, author_last_name,
			target_handle, secret_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, w.ID, w.Author.ID, w.Author.Username, w.Author.FirstName, w.Author.LastName,
		w.TargetHandle, w.SecretText, w.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert whisper: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Whisper, error) {
	w := &models.Whisper{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, author_id, author_username, author_first_name, author_last_name,
			target_handle, secret_text, created_at, opened_at, opened_by
		FROM whispers WHERE id = $1
	`, id).Scan(
		&w.ID,
		&w.Author.ID,
		&w.Author.Username,
		&w.Author.FirstName,
		&w.Author.LastName,
		&w.TargetHandle,
		&w.SecretText,
		&w.CreatedAt,
		&w.OpenedAt,
		&w.OpenedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get whisper: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) MarkOpened(ctx context.Context, id string, openerID int64, at time.Time) (bool, error) {
	var exists, set bool
	err := s.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE whispers SET opened_at = $2, opened_by = $3
			WHERE id = $1 AND opened_at IS NULL
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM whispers WHERE id = $1),
		       EXISTS (SELECT 1 FROM updated)
	`, id, at.UTC(), openerID).Scan(&exists, &set)
	if err != nil {
		return false, fmt.Errorf("mark whisper opened: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return set, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
