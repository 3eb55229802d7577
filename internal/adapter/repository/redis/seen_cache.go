package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache implements usecase.SeenCache. It remembers committed event ids
// so redeliveries can be answered without opening a transaction.
type SeenCache struct {
	client *redis.Client
	prefix string
}

// NewSeenCache creates a new SeenCache.
func NewSeenCache(client *redis.Client) *SeenCache {
	return &SeenCache{
		client: client,
		prefix: "revledger:seen:",
	}
}

// Seen reports whether eventID was marked.
func (c *SeenCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen marks eventID for ttl.
func (c *SeenCache) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+eventID, 1, ttl).Err()
}
