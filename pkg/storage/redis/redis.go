// Package redis provides a Redis-backed implementation of the storage interface.
package redis

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/personaforge/personaforge/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// Config holds configuration for RedisStorage.
type Config struct {
	Address      string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:6379",
		KeyPrefix:    "personaforge:",
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// RedisStorage implements storage.KV on top of plain Redis strings.
type RedisStorage struct {
	client redis.Cmdable
	closer func() error
	prefix string
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, cfg *Config) (*RedisStorage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	s := NewWithClient(client, cfg.KeyPrefix)
	s.closer = client.Close
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client redis.Cmdable, keyPrefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: keyPrefix}
}

func (s *RedisStorage) key(k string) string { return s.prefix + k }

// Get retrieves the value stored under key.
func (s *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &storage.NotFoundError{EntityType: "key", ID: key}
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return data, nil
}

// Put stores value under key without expiry.
func (s *RedisStorage) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Delete removes key.
func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// List scans for keys with prefix and returns them sorted, without the
// storage key prefix.
func (s *RedisStorage) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.key(prefix)) + "*"
	keys := make([]string, 0)
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return nil, &storage.StorageUnavailableError{Cause: err}
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	// SCAN may return a key more than once.
	return dedupSorted(keys), nil
}

// Close closes the client if this storage created it.
func (s *RedisStorage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dedupSorted(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
