// Package redis dials the shared cache backing the species catalog.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fieldbook/internal/platform/config"
)

// Client embeds the go-redis client and adds the health probe the readiness
// endpoint expects.
type Client struct {
	*redis.Client
}

// New connects using the platform configuration and verifies the connection
// with a ping before handing the client out. An empty URL disables Redis
// entirely; callers receive a nil client and fall back to local caching.
func New(cfg config.Redis) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the connection still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
