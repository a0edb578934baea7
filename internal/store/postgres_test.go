package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set WHISPER_TEST_DATABASE_URL to run against a real PostgreSQL server.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("WHISPER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WHISPER_TEST_DATABASE_URL not set")
	}
	require.NoError(t, RunPostgresMigrations(url))

	testStore(t, func(t *testing.T) Store {
		s, err := NewPostgresStore(context.Background(), url)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/w", pgx5URL("postgres://u:p@db:5432/w"))
	assert.Equal(t, "pgx5://db/w?sslmode=disable", pgx5URL("postgresql://db/w?sslmode=disable"))
	assert.Equal(t, "pgx5://db/w", pgx5URL("pgx5://db/w"))
}
