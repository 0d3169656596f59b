/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps the last good output of the content producers so a
// bulletin can still air when a feed or API is down. Values live in Redis
// when it is configured and reachable, in process memory otherwise.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL bounds how stale a recalled value may be.
const DefaultTTL = 6 * time.Hour

// KeyPrefix namespaces cache keys in Redis.
const KeyPrefix = "navoradio:cache:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TTL time.Duration

	// DisableOnError switches to the memory store after a Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:            DefaultTTL,
		DisableOnError: true,
	}
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// Cache provides Redis-backed caching with an in-memory fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config
	now    func() time.Time

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
	memory   map[string]memEntry
}

// New creates a cache. An empty or unreachable Redis address gives a
// memory-only cache rather than an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	c := &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
		now:    time.Now,
		memory: make(map[string]memEntry),
	}
	if cfg.RedisAddr == "" {
		c.disabled = true
		return c, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, keeping producer results in memory")
		_ = client.Close()
		c.disabled = true
		return c, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	c.client = client
	return c, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable reports whether Redis is serving the cache.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling Redis cache due to error, falling back to memory")
	}
}

// get retrieves a value and unmarshals it into dest.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	data, ok, err := c.getRaw(ctx, KeyPrefix+key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) getRaw(ctx context.Context, key string) ([]byte, bool, error) {
	if c.IsAvailable() {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if err == nil {
			return data, true, nil
		}
		c.handleError(err, "get")
	}

	c.mu.RLock()
	entry, ok := c.memory[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expires) {
		return nil, false, nil
	}
	return entry.data, true, nil
}

// set stores a value with the configured TTL.
func (c *Cache) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	key = KeyPrefix + key

	if c.IsAvailable() {
		err := c.client.Set(ctx, key, data, c.config.TTL).Err()
		if err == nil {
			return nil
		}
		c.handleError(err, "set")
	}

	c.mu.Lock()
	c.memory[key] = memEntry{data: data, expires: c.now().Add(c.config.TTL)}
	c.mu.Unlock()
	return nil
}

// Remember stores the latest good value for key.
func (c *Cache) Remember(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if err := c.set(ctx, key, value); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("remember failed")
	}
}

// Recall returns the last value remembered for key if it has not expired.
func (c *Cache) Recall(ctx context.Context, key string) (string, bool) {
	var value string
	ok, err := c.get(ctx, key, &value)
	if err != nil || !ok || value == "" {
		return "", false
	}
	return value, true
}
