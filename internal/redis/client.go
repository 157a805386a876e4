package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions is what the intake services need from a Redis server: one
// small pool shared by store locks and session state.
type ClientOptions struct {
	Addr        string
	Username    string
	Password    string
	PoolSize    int
	PingTimeout time.Duration
}

// Connect opens a client for opts and checks it answers within
// PingTimeout, so a wrong REDIS_URL stops startup instead of the first
// booking.
func Connect(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 8
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}

	// lock polling and session reads are single round trips
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		PoolSize:     opts.PoolSize,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s did not answer ping: %w", opts.Addr, err)
	}
	return client, nil
}
