package redisdir

import (
	"context"
	"fmt"
	"time"

	"trainer-chat/errors"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// SetClient is the part of the go-redis client a Directory needs.
type SetClient interface {
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
}

// Directory is a trainer directory backed by one Redis set of principal ids.
type Directory struct {
	client SetClient
	set    string
}

func NewDirectory(client SetClient, set string) *Directory {
	return &Directory{client: client, set: set}
}

func (d *Directory) Name() string {
	return "redis:" + d.set
}

func (d *Directory) Exists(ctx context.Context, principalID string) (bool, error) {
	found, err := d.client.SIsMember(ctx, d.set, principalID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis %s: %v", errors.ErrNetwork, d.set, err)
	}
	return found, nil
}

func (d *Directory) Register(ctx context.Context, principalID string) error {
	if principalID == "" {
		return errors.InvalidArgument("principal id is empty")
	}
	if err := d.client.SAdd(ctx, d.set, principalID).Err(); err != nil {
		return fmt.Errorf("%w: redis %s: %v", errors.ErrNetwork, d.set, err)
	}
	return nil
}

// Connect parses url and checks the server answers before returning the client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}
