package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ogsm-service/logger"
	"ogsm-service/models"
)

// RedisTreeCache shares the assembled forest between service instances so
// an invalidation on one instance is seen by all of them. The generation
// lives under genKey and never expires.
type RedisTreeCache struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	key    string
	genKey string
	ttl    time.Duration
}

// NewRedisTreeCache connects to addr and pings it before returning.
func NewRedisTreeCache(ctx context.Context, addr, key string, ttl time.Duration, log *logger.Logger) (*RedisTreeCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisTreeCacheFromClient(rdb, key, ttl, log), nil
}

// NewRedisTreeCacheFromClient wraps an existing client.
func NewRedisTreeCacheFromClient(rdb goredis.UniversalClient, key string, ttl time.Duration, log *logger.Logger) *RedisTreeCache {
	if key == "" {
		key = "ogsm:tree"
	}
	return &RedisTreeCache{
		log:    log.With("service", "RedisTreeCache"),
		rdb:    rdb,
		key:    key,
		genKey: key + ":gen",
		ttl:    ttl,
	}
}

func (c *RedisTreeCache) Get(ctx context.Context) ([]models.TreeNode, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	var nodes []models.TreeNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		// A payload we cannot read is as good as a miss; drop it.
		c.log.Warn("Discarding unreadable tree cache entry", "key", c.key, "error", err)
		_ = c.rdb.Del(ctx, c.key).Err()
		return nil, false, nil
	}
	return nodes, true, nil
}

func (c *RedisTreeCache) Generation(ctx context.Context) (uint64, error) {
	return c.generation(ctx, c.rdb)
}

func (c *RedisTreeCache) generation(ctx context.Context, cmd goredis.Cmdable) (uint64, error) {
	gen, err := cmd.Get(ctx, c.genKey).Uint64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", c.genKey, err)
	}
	return gen, nil
}

// Set writes the forest under WATCH on the generation key, so an
// invalidation from any instance between the read and the write wins.
func (c *RedisTreeCache) Set(ctx context.Context, gen uint64, nodes []models.TreeNode) error {
	raw, err := json.Marshal(nodes)
	if err != nil {
		return err
	}
	err = c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := c.generation(ctx, tx)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, c.key, raw, c.ttl)
			return nil
		})
		return err
	}, c.genKey)
	if errors.Is(err, goredis.TxFailedErr) {
		c.log.Debug("Tree cache write lost to an invalidation", "key", c.key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}

func (c *RedisTreeCache) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate %s: %w", c.key, err)
	}
	return nil
}

func (c *RedisTreeCache) Close() error {
	return c.rdb.Close()
}
