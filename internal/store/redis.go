package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"whisper.relay/internal/models"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each whisper in a hash at whisper:<id>.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(options *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// createScript writes the hash only when the key is absent.
var createScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], unpack(ARGV))
	return 1
`)

// markOpenedScript sets opened_at/opened_by only if opened_at is unset.
// Returns -1 for a missing key, 0 if already opened, 1 if this call set it.
var markOpenedScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	if redis.call('HEXISTS', KEYS[1], 'opened_at') == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'opened_at', ARGV[1], 'opened_by', ARGV[2])
	return 1
`)

func (r *RedisStore) Create(ctx context.Context, w *models.Whisper) error {
	author, err := json.Marshal(w.Author)
	if err != nil {
		return fmt.Errorf("encoding author: %w", err)
	}

	args := []any{
		"author", string(author),
		"target_handle", w.TargetHandle,
		"secret_text", w.SecretText,
		"created_at", w.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	created, err := createScript.Run(ctx, r.client, []string{whisperKey(w.ID)}, args...).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Whisper, error) {
	fields, err := r.client.HGetAll(ctx, whisperKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decode(id, fields)
}

func (r *RedisStore) MarkOpened(ctx context.Context, id string, openerID int64, at time.Time) (bool, error) {
	res, err := markOpenedScript.Run(ctx, r.client, []string{whisperKey(id)},
		at.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(openerID, 10),
	).Int()
	if err != nil {
		return false, err
	}

	switch res {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

func whisperKey(id string) string {
	return "whisper:" + id
}

func decode(id string, fields map[string]string) (*models.Whisper, error) {
	w := &models.Whisper{
		ID:           id,
		TargetHandle: fields["target_handle"],
		SecretText:   fields["secret_text"],
	}

	if err := json.Unmarshal([]byte(fields["author"]), &w.Author); err != nil {
		return nil, fmt.Errorf("decoding author: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decoding created_at: %w", err)
	}
	w.CreatedAt = createdAt

	if v, ok := fields["opened_at"]; ok {
		openedAt, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decoding opened_at: %w", err)
		}
		openedBy, err := strconv.ParseInt(fields["opened_by"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decoding opened_by: %w", err)
		}
		w.OpenedAt = &openedAt
		w.OpenedBy = &openedBy
	}

	return w, nil
}
