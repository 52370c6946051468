package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/cbquant/pkg/config"
)

const connectTimeout = 3 * time.Second

// Client is the shared Redis handle for result caching and API rate limits.
// A disabled client is valid: every operation becomes a no-op.
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb  *redis.Client
	addr string
}

// New connects when REDIS_ENABLED is set and verifies the server answers
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{}, nil
	}

	addr := net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		// 배치 워커 + API 요청 동시 캐시 접근
		PoolSize: 4 * cfg.Backtest.Workers,
	})

	c := &Client{rdb: rdb, addr: addr}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return c, nil
}

// Ping checks the connection; always nil when disabled
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", c.addr, err)
	}
	return nil
}

// Close releases the connection pool
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Enabled reports whether a server is connected
func (c *Client) Enabled() bool {
	return c.rdb != nil
}

// Addr is host:port of the server, empty when disabled
func (c *Client) Addr() string {
	return c.addr
}

// Redis exposes the go-redis client to the cache and rate limiter
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
