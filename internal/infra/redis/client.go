package redis

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/acme/outbound-batch-dialer/internal/config"
)

// Client wraps a go-redis client.
type Client struct {
	inner *redis.Client
}

// Options translates config into go-redis options. The client name shows up
// in CLIENT LIST so lock holders can be traced back to a process.
func Options(cfg config.RedisConfig, clientName string) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
	}
}

// NewClient creates a redis client from config and pings it.
func NewClient(ctx context.Context, cfg config.RedisConfig, clientName string) (*Client, error) {
	client := redis.NewClient(Options(cfg, clientName))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{inner: client}, nil
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Inner exposes the raw redis client.
func (c *Client) Inner() *redis.Client {
	return c.inner
}
