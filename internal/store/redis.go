package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/tandem/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	redisTokenPrefix  = "token/"
	redisSnapshotKey  = "current_song"
	redisPingTimeout  = 2 * time.Second
	redisScanPageSize = 100
)

// RedisStore keeps credentials under token/<id> and the snapshot under current_song.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to cfg.Addr and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg shared.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: redisTokenPrefix}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", redisScanPageSize).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

func (r *RedisStore) Has(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}

	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check credential: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	val, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential: %w", err)
	}
	return val, nil
}

func (r *RedisStore) Put(ctx context.Context, id, token string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidInput)
	}

	if err := r.client.Set(ctx, r.key(id), token, 0).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, id)
	}
	return nil
}

func (r *RedisStore) PublishSnapshot(ctx context.Context, payload []byte) error {
	if err := r.client.Set(ctx, redisSnapshotKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (r *RedisStore) Snapshot(ctx context.Context) ([]byte, error) {
	val, err := r.client.Get(ctx, redisSnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return val, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
