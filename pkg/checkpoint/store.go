package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/gphotos-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates no checkpoint exists for the key
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidCheckpoint indicates the stored value is corrupted
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// record is the JSON value stored under a key.
type record struct {
	Cursor  pagination.PageCursor `json:"cursor"`
	SavedAt time.Time             `json:"saved_at"`
}

// Store persists pagination cursors in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new checkpoint store with Redis backend.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis: redisClient,
	}
}

// Save stores cur under key. A ttl of 0 keeps the checkpoint until deleted.
// A finished cursor removes the key instead, so the next run starts over.
func (s *Store) Save(ctx context.Context, key Key, cur pagination.PageCursor, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("checkpoint ttl must be >= 0 (got %v)", ttl)
	}
	if err := cur.Validate(); err != nil {
		return err
	}
	if cur.Done {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(record{Cursor: cur, SavedAt: time.Now().UTC()})
	if err != nil {
		CheckpointOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CheckpointOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CheckpointOps.WithLabelValues("save", "ok").Inc()
	return nil
}

// Load retrieves the cursor stored under key.
// Returns ErrNotFound if the key doesn't exist or has expired.
func (s *Store) Load(ctx context.Context, key Key) (pagination.PageCursor, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CheckpointOps.WithLabelValues("load", "miss").Inc()
			return pagination.PageCursor{}, ErrNotFound
		}
		CheckpointOps.WithLabelValues("load", "error").Inc()
		return pagination.PageCursor{}, fmt.Errorf("redis get: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		CheckpointOps.WithLabelValues("load", "error").Inc()
		return pagination.PageCursor{}, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	if err := rec.Cursor.Validate(); err != nil {
		CheckpointOps.WithLabelValues("load", "error").Inc()
		return pagination.PageCursor{}, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	CheckpointOps.WithLabelValues("load", "ok").Inc()
	return rec.Cursor, nil
}

// Delete removes a checkpoint. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CheckpointOps.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	CheckpointOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

// SavedAt reports when the checkpoint under key was written.
func (s *Store) SavedAt(ctx context.Context, key Key) (time.Time, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	return rec.SavedAt, nil
}
