// Package redisstore persists chat sessions in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haowjy/meridian-stream-go/chat"
)

// Config configures the Redis session store.
type Config struct {
	// Addrs holds one address for a standalone server or several for a cluster.
	// Defaults to localhost:6379.
	Addrs    []string
	Password string
	DB       int // standalone only

	KeyPrefix    string        // default "meridian:session:"
	TTL          time.Duration // zero keeps sessions forever
	DialTimeout  time.Duration // default 5s
	ReadTimeout  time.Duration // default 3s
	WriteTimeout time.Duration // default 3s
	PoolSize     int           // default 10

	Logger *slog.Logger
}

// Store implements chat.SessionStore with one JSON value per session.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ chat.SessionStore = (*Store)(nil)

// New connects to Redis and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		cfg.Addrs = []string{"localhost:6379"}
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "meridian:session:"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var client redis.UniversalClient
	if len(cfg.Addrs) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addrs[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cfg.Logger.Info("redis session store initialized", "addrs", cfg.Addrs, "prefix", cfg.KeyPrefix)
	return NewWithClient(client, cfg.KeyPrefix, cfg.TTL, cfg.Logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// Load returns the messages of a session, or chat.ErrSessionNotFound.
func (s *Store) Load(ctx context.Context, id string) ([]chat.Message, error) {
	if id == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, chat.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var messages []chat.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return messages, nil
}

// Save replaces the messages of a session.
func (s *Store) Save(ctx context.Context, id string, messages []chat.Message) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Debug("saved session to redis", "session_id", id, "messages", len(messages))
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
