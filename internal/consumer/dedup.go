package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agri-mesh-go/internal/constants"
)

// Ensure RedisDeduper implements the Deduper interface.
var _ Deduper = (*RedisDeduper)(nil)

// RedisDeduper remembers processed message ids in Redis with a TTL. Because
// ids are marked only after successful handling, a crash between handling
// and marking means one reprocessing, consistent with at-least-once.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a guard over client with the default key prefix
// and retention window.
func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{
		client: client,
		prefix: constants.ConsumedMessageKeyPrefix,
		ttl:    constants.ConsumedMessageTTL,
	}
}

// Seen implements Deduper.
func (d *RedisDeduper) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed message id: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed implements Deduper.
func (d *RedisDeduper) MarkProcessed(ctx context.Context, messageID string) error {
	if err := d.client.Set(ctx, d.key(messageID), 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record processed message id: %w", err)
	}
	return nil
}

func (d *RedisDeduper) key(messageID string) string {
	return d.prefix + messageID
}
