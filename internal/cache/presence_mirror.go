package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

// PresenceMirror is the durable, best-effort copy of presence state.
// Writers fire and forget; readers tolerate staleness.
type PresenceMirror struct {
	rdb    *redis.Client
	prefix string
}

func NewPresenceMirror(rdb *redis.Client, prefix string) *PresenceMirror {
	return &PresenceMirror{rdb: rdb, prefix: prefix}
}

func (m *PresenceMirror) key(userID string) string {
	return m.prefix + ":presence:" + userID
}

func (m *PresenceMirror) Set(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error {
	p := models.Presence{UserID: userID, Status: status, LastSeen: lastSeen}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, m.key(userID), b, 0).Err()
}

func (m *PresenceMirror) Get(ctx context.Context, userID string) (*models.Presence, error) {
	b, err := m.rdb.Get(ctx, m.key(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperr.NotFound("no presence recorded")
		}
		return nil, apperr.TransientIO("get presence", err)
	}
	var p models.Presence
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, apperr.TransientIO("decode presence", err)
	}
	return &p, nil
}
