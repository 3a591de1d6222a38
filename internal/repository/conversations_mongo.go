package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

type mongoConversations struct {
	col *mongo.Collection
}

func NewMongoConversations(col *mongo.Collection) Conversations {
	return &mongoConversations{col: col}
}

func (r *mongoConversations) Create(ctx context.Context, c *models.Conversation) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	normalize(c)
	if _, err := r.col.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("conversation already exists")
		}
		return apperr.TransientIO("create conversation", err)
	}
	return nil
}

func (r *mongoConversations) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.TransientIO("get conversation", err)
	}
	return &c, nil
}

func (r *mongoConversations) GetOrCreateDirect(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	key := models.DirectKeyFor(userA, userB)
	pair := []string{userA, userB}

	if c, err := r.restoreByKey(ctx, key, pair); err == nil {
		return c, false, nil
	} else if !apperr.IsCode(err, apperr.CodeNotFound) {
		return nil, false, err
	}

	c := &models.Conversation{
		IsGroup:      false,
		Participants: pair,
		MutedBy:      []string{},
		BlockedBy:    []string{},
		PinnedBy:     []string{},
		DeletedBy:    []string{},
		DirectKey:    key,
	}
	err := r.Create(ctx, c)
	if err == nil {
		return c, true, nil
	}
	if apperr.IsCode(err, apperr.CodeConflict) {
		// lost the race to the other side; the index arbitrated
		existing, ferr := r.restoreByKey(ctx, key, pair)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	return nil, false, err
}

// restoreByKey finds the direct conversation for the pair and clears both
// users from deleted_by, so an accepted request revives a soft-deleted
// conversation instead of duplicating it.
func (r *mongoConversations) restoreByKey(ctx context.Context, key string, pair []string) (*models.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{
		"$pull": bson.M{"deleted_by": bson.M{"$in": pair}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	var c models.Conversation
	err := r.col.FindOneAndUpdate(ctx, bson.M{"direct_key": key}, update, opts).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.TransientIO("restore conversation", err)
	}
	return &c, nil
}

func (r *mongoConversations) ListForUser(ctx context.Context, userID string, limit int64) ([]*models.Conversation, error) {
	filter := bson.M{
		"participants": userID,
		"deleted_by":   bson.M{"$ne": userID},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.TransientIO("list conversations", err)
	}
	defer cur.Close(ctx)

	var out []*models.Conversation
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, apperr.TransientIO("decode conversation", err)
		}
		out = append(out, &c)
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.TransientIO("list conversations", err)
	}
	return out, nil
}

func (r *mongoConversations) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	_, err := r.col.UpdateByID(ctx, conversationID, bson.M{
		"$set": bson.M{"last_message_id": messageID, "updated_at": at},
	})
	if err != nil {
		return apperr.TransientIO("touch conversation", err)
	}
	return nil
}

func (r *mongoConversations) AddToSet(ctx context.Context, conversationID, field, userID string) error {
	_, err := r.col.UpdateByID(ctx, conversationID, bson.M{
		"$addToSet": bson.M{field: userID},
	})
	if err != nil {
		return apperr.TransientIO("update overlay", err)
	}
	return nil
}

func (r *mongoConversations) PullFromSet(ctx context.Context, conversationID, field, userID string) error {
	_, err := r.col.UpdateByID(ctx, conversationID, bson.M{
		"$pull": bson.M{field: userID},
	})
	if err != nil {
		return apperr.TransientIO("update overlay", err)
	}
	return nil
}

func (r *mongoConversations) UpdateGroupMeta(ctx context.Context, conversationID string, name, description, groupImage *string) (*models.Conversation, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if name != nil {
		set["name"] = *name
	}
	if description != nil {
		set["description"] = *description
	}
	if groupImage != nil {
		set["group_image"] = *groupImage
	}
	return r.findAndUpdate(ctx, conversationID, bson.M{"$set": set})
}

func (r *mongoConversations) AddMember(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	return r.findAndUpdate(ctx, conversationID, bson.M{
		"$addToSet": bson.M{"participants": userID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
}

func (r *mongoConversations) RemoveMember(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	return r.findAndUpdate(ctx, conversationID, bson.M{
		"$pull": bson.M{"participants": userID, "admins": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (r *mongoConversations) findAndUpdate(ctx context.Context, id string, update bson.M) (*models.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var c models.Conversation
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.TransientIO("update conversation", err)
	}
	return &c, nil
}

func normalize(c *models.Conversation) {
	c.Participants = models.Dedupe(c.Participants)
	c.Admins = models.Dedupe(c.Admins)
}
