package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/ordercqrs/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// Client represents a Redis client.
type Client struct {
	rdb *goredis.Client
}

// NewClientFrom wraps an existing go-redis client.
func NewClientFrom(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

// Redis returns the underlying go-redis client.
func (c *Client) Redis() *goredis.Client {
	return c.rdb
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// MustNewClient connects using settings from the environment.
func MustNewClient() *Client {
	var creds config.RedisEnv
	if err := config.ParseEnv(&creds); err != nil {
		panic(err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     creds.Addr,
		Password: creds.Password,
		DB:       creds.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	slog.Info("Redis connected", "addr", creds.Addr)

	return &Client{rdb: rdb}
}
