package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

const pingTimeout = 5 * time.Second

// Config holds the connection settings for the lock server.
type Config struct {
	Addr     string
	Password string
	DB       int
	// PoolSize caps open connections; zero keeps the driver default.
	PoolSize int
}

// Connect opens a client and pings it. A failed ping is reported as a store
// outage so startup errors read the same as runtime ones.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w: %w", cfg.Addr, domain.ErrStoreUnavailable, err)
	}
	return client, nil
}
