package models

import (
	"strings"
	"time"
)

type Conversation struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	IsGroup       bool      `bson:"is_group" json:"is_group"`
	Participants  []string  `bson:"participants" json:"participants"`
	Admins        []string  `bson:"admins,omitempty" json:"admins,omitempty"`
	Name          string    `bson:"name,omitempty" json:"name,omitempty"`
	Description   string    `bson:"description,omitempty" json:"description,omitempty"`
	GroupImage    string    `bson:"group_image,omitempty" json:"group_image,omitempty"`
	LastMessageID string    `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	MutedBy       []string  `bson:"muted_by" json:"muted_by"`
	BlockedBy     []string  `bson:"blocked_by" json:"blocked_by"`
	PinnedBy      []string  `bson:"pinned_by" json:"pinned_by"`
	DeletedBy     []string  `bson:"deleted_by" json:"deleted_by"`
	// DirectKey is the canonically sorted participant pair ("a:b", a < b),
	// set only for direct conversations. A unique sparse index on it makes
	// get-or-create race-safe at the store level.
	DirectKey string    `bson:"direct_key,omitempty" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DirectKeyFor builds the canonical key for an unordered user pair.
func DirectKeyFor(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (c *Conversation) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

func (c *Conversation) HasAdmin(userID string) bool {
	return contains(c.Admins, userID)
}

func (c *Conversation) BlockedFor(userID string) bool {
	return contains(c.BlockedBy, userID)
}

func (c *Conversation) DeletedFor(userID string) bool {
	return contains(c.DeletedBy, userID)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Dedupe returns ids with duplicates and empty entries removed,
// preserving first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
