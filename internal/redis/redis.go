package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docuexplore/internal/config"

	redis "github.com/redis/go-redis/v9"
)

const connectTimeout = 3 * time.Second

var errNotInitialized = errors.New("redis client not initialized")

// Client is the shared connection behind the session snapshot store, the
// health check and the cross-instance invalidation channel.
type Client struct {
	inner *redis.Client
}

// ErrCacheMiss is returned by Get for absent keys.
var ErrCacheMiss = redis.Nil

// NewRedisClient connects using the redis section of cfg and fails fast when
// the server does not answer.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	client := redis.NewClient(optionsFromConfig(cfg.Redis))
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", client.Options().Addr, err)
	}
	return &Client{inner: client}, nil
}

func optionsFromConfig(rc config.RedisConfig) *redis.Options {
	host := rc.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := rc.Port
	if port == 0 {
		port = 6379
	}
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	}
}

func (c *Client) ready() bool {
	return c != nil && c.inner != nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.ready() {
		return errNotInitialized
	}
	return c.inner.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if !c.ready() {
		return "", errNotInitialized
	}
	return c.inner.Get(ctx, key).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.ready() {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// Expire slides the TTL of a snapshot that is still in use.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !c.ready() {
		return errNotInitialized
	}
	return c.inner.Expire(ctx, key, ttl).Err()
}

// Ping backs the /healthz endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if !c.ready() {
		return errNotInitialized
	}
	return c.inner.Ping(ctx).Err()
}

// Publish sends payload to every subscriber of channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if !c.ready() {
		return errNotInitialized
	}
	return c.inner.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a subscription that is already confirmed by the server,
// so messages published after it returns are not missed. Callers close it.
func (c *Client) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	if !c.ready() {
		return nil, errNotInitialized
	}
	pubsub := c.inner.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return pubsub, nil
}

func (c *Client) Close() error {
	if !c.ready() {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes the go-redis client for test fixtures (FlushDB).
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
