package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/yusa21/tunedeck/internal/app/sync"
)

// RedisConfig holds connection settings for the remote snapshot store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string        // Snapshot key, typically per user
	TTL      time.Duration // 0 means no expiry
}

// RedisStore persists the snapshot in Redis so playback state follows
// the user across devices.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store and verifies the
// connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("snapshot key is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return &RedisStore{client: client, key: cfg.Key, ttl: cfg.TTL}, nil
}

// Load implements sync.Store.
func (r *RedisStore) Load(ctx context.Context) (sync.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sync.Snapshot{}, sync.ErrNotFound
		}
		return sync.Snapshot{}, errors.Wrap(err, "failed to read snapshot")
	}

	var snapshot sync.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return sync.Snapshot{}, errors.Wrap(err, "failed to decode snapshot")
	}
	return snapshot, nil
}

// Save implements sync.Store.
func (r *RedisStore) Save(ctx context.Context, snapshot sync.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}
	return nil
}

// Clear implements sync.Store.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return errors.Wrap(err, "failed to remove snapshot")
	}
	return nil
}

// Close releases the underlying connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
