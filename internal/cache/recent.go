package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pranab56/TradeLog-sub000/internal/models"
)

// RecentMessages keeps the newest N messages of a conversation so the
// common "open the chat" fetch skips Mongo. Mutations (edit, delete,
// react) invalidate the list instead of patching it.
type RecentMessages struct {
	rdb    *redis.Client
	prefix string
	size   int64
	ttl    time.Duration
}

func NewRecentMessages(rdb *redis.Client, prefix string) *RecentMessages {
	return &RecentMessages{rdb: rdb, prefix: prefix, size: 100, ttl: 24 * time.Hour}
}

func (c *RecentMessages) key(conversationID string) string {
	return c.prefix + ":recent:" + conversationID
}

func (c *RecentMessages) Push(ctx context.Context, m *models.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := c.key(m.ConversationID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, c.size-1)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RecentMessages) List(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error) {
	if limit <= 0 || limit > c.size {
		limit = c.size
	}
	raw, err := c.rdb.LRange(ctx, c.key(conversationID), 0, limit-1).Result()
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	out := make([]*models.Message, 0, len(raw))
	// stored newest-first; return chronological
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.Message
		if err := json.Unmarshal([]byte(raw[i]), &m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, nil
}

func (c *RecentMessages) Invalidate(ctx context.Context, conversationID string) error {
	return c.rdb.Del(ctx, c.key(conversationID)).Err()
}
