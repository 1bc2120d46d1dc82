package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/conductor/internal/config"
)

const defaultMaxEntries = 10000

// RedisSink pushes records onto one list per kind, newest first, trimmed
// to a fixed length.
type RedisSink struct {
	client     *redis.Client
	prefix     string
	maxEntries int64
}

// OpenRedis connects to Redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisSink(client, cfg.KeyPrefix, cfg.MaxEntries), nil
}

// NewRedisSink wraps an existing client. A maxEntries of 0 uses the default.
func NewRedisSink(client *redis.Client, prefix string, maxEntries int64) *RedisSink {
	if prefix == "" {
		prefix = "conductor"
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &RedisSink{client: client, prefix: prefix, maxEntries: maxEntries}
}

// Key returns the list key for kind.
func (s *RedisSink) Key(kind Kind) string {
	return s.prefix + ":archive:" + string(kind)
}

// Write pushes r and trims the list in one pipeline.
func (s *RedisSink) Write(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	key := s.Key(r.Kind)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, s.maxEntries-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive %s %s to redis: %w", r.Kind, r.ID, err)
	}
	return nil
}

// Recent returns up to n records of kind, newest first.
func (s *RedisSink) Recent(ctx context.Context, kind Kind, n int64) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.Key(kind), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s archive: %w", kind, err)
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("decode archived record: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
