package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pranab56/TradeLog-sub000/internal/models"
)

type Messages interface {
	Insert(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, conversationID string, limit int64, before time.Time) ([]*models.Message, error)
	// MarkRead appends a receipt to every message in the conversation not
	// sent by the reader and not already read by them. Idempotent; returns
	// the number of messages updated.
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	// SetReaction replaces the user's previous reaction, if any.
	SetReaction(ctx context.Context, messageID string, r models.Reaction) (*models.Message, error)
	RemoveReaction(ctx context.Context, messageID, userID string) (*models.Message, error)
	Edit(ctx context.Context, messageID, content string, at time.Time) (*models.Message, error)
	// Tombstone marks the message deleted and replaces its content with the
	// deletion marker. The row is never removed.
	Tombstone(ctx context.Context, messageID string) (*models.Message, error)
	SetPinned(ctx context.Context, messageID string, pinned bool) (*models.Message, error)
}

type Conversations interface {
	Create(ctx context.Context, c *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	// GetOrCreateDirect resolves the unordered pair's direct conversation,
	// creating it if missing. Safe under concurrent calls from both sides:
	// the unique direct_key index arbitrates, not a check-then-insert.
	// Clears both users from deleted_by on the existing conversation.
	GetOrCreateDirect(ctx context.Context, userA, userB string) (*models.Conversation, bool, error)
	ListForUser(ctx context.Context, userID string, limit int64) ([]*models.Conversation, error)
	TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error
	AddToSet(ctx context.Context, conversationID, field, userID string) error
	PullFromSet(ctx context.Context, conversationID, field, userID string) error
	UpdateGroupMeta(ctx context.Context, conversationID string, name, description, groupImage *string) (*models.Conversation, error)
	AddMember(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
	RemoveMember(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
}

type Requests interface {
	Create(ctx context.Context, r *models.MessageRequest) error
	GetByID(ctx context.Context, id string) (*models.MessageRequest, error)
	// UpdateStatus transitions from -> to conditionally; a request not in
	// the from state yields a conflict.
	UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) (*models.MessageRequest, error)
}

// Overlay field names accepted by AddToSet/PullFromSet.
const (
	FieldMutedBy   = "muted_by"
	FieldBlockedBy = "blocked_by"
	FieldPinnedBy  = "pinned_by"
	FieldDeletedBy = "deleted_by"
)

// EnsureIndexes creates the indexes the repositories rely on. The unique
// sparse index on direct_key is what enforces at most one direct
// conversation per unordered pair.
func EnsureIndexes(ctx context.Context, msgCol, convCol, reqCol *mongo.Collection) error {
	_, err := convCol.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "direct_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("direct_key_unique"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("participants_updated"),
		},
	})
	if err != nil {
		return err
	}
	_, err = msgCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("conversation_created"),
	})
	if err != nil {
		return err
	}
	_, err = reqCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("request_pair_unique"),
	})
	return err
}
