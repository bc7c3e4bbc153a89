package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/minoad/docuparse/internal/errors"
)

// RedisWriter stores each record as a JSON string under prefix+key
type RedisWriter struct {
	client *redis.Client
	prefix string
}

// NewRedisWriter connects to redisURL and verifies the connection
func NewRedisWriter(ctx context.Context, redisURL string, prefix string) (*RedisWriter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisWriter{client: client, prefix: prefix}, nil
}

func (r *RedisWriter) Name() string { return "redis" }

func (r *RedisWriter) key(key string) string { return r.prefix + key }

func (r *RedisWriter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, apperrors.NewStorageFailedError(key, r.Name(), err)
	}
	return n > 0, nil
}

// WriteData uses SETNX without force so concurrent writers cannot both win
func (r *RedisWriter) WriteData(ctx context.Context, payload Payload, force bool) (bool, error) {
	key, doc, err := singleEntry(payload)
	if err != nil {
		return false, err
	}

	data, err := json.Marshal(withID(key, doc))
	if err != nil {
		return false, fmt.Errorf("failed to marshal record: %w", err)
	}

	if force {
		if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
			return false, apperrors.NewStorageFailedError(key, r.Name(), err)
		}
		return true, nil
	}

	written, err := r.client.SetNX(ctx, r.key(key), data, 0).Result()
	if err != nil {
		return false, apperrors.NewStorageFailedError(key, r.Name(), err)
	}
	return written, nil
}

func (r *RedisWriter) Read(ctx context.Context, key string) (Document, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewStorageFailedError(key, r.Name(), err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return doc, true, nil
}

// Count scans the keyspace under the writer's prefix
func (r *RedisWriter) Count(ctx context.Context) (int64, error) {
	var n int64
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, apperrors.NewStorageFailedError("", r.Name(), err)
	}
	return n, nil
}

func (r *RedisWriter) Close() error {
	return r.client.Close()
}
