package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func documentContentKey(id string) string {
	return "document:content:" + id
}

var _ ContentCache = (*Redis)(nil)

type Redis struct {
	client *redis.Client
}

func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password set
		DB:       0,  // Use default DB
		Protocol: 2,  // Connection protocol
	})

	return &Redis{client: client}, nil
}

func (r *Redis) GetContent(ctx context.Context, documentID string) ([]byte, error) {
	res := r.client.Get(ctx, documentContentKey(documentID))
	if res.Err() != nil {
		if errors.Is(res.Err(), redis.Nil) {
			return nil, nil
		}
		return nil, res.Err()
	}

	return res.Bytes()
}

func (r *Redis) SetContent(ctx context.Context, documentID string, content []byte, ttl time.Duration) error {
	return r.client.Set(ctx, documentContentKey(documentID), content, ttl).Err()
}

func (r *Redis) DeleteContent(ctx context.Context, documentID string) error {
	return r.client.Del(ctx, documentContentKey(documentID)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
