package store

import (
	"context"
	"errors"
	"time"

	"whisper.relay/internal/models"
)

var (
	ErrNotFound  = errors.New("whisper not found")
	ErrDuplicate = errors.New("whisper id already exists")
)

// Store persists whispers keyed by id. Implementations must make MarkOpened
// an atomic set-if-unset so concurrent reveals of one whisper agree on a
// single opener.
type Store interface {
	Create(ctx context.Context, w *models.Whisper) error
	Get(ctx context.Context, id string) (*models.Whisper, error)
	// MarkOpened records the first opener. It returns true only for the call
	// that actually set the fields; later calls leave them untouched.
	MarkOpened(ctx context.Context, id string, openerID int64, at time.Time) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
