package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

type mongoMessages struct {
	col *mongo.Collection
}

func NewMongoMessages(col *mongo.Collection) Messages {
	return &mongoMessages{col: col}
}

func (r *mongoMessages) Insert(ctx context.Context, m *models.Message) error {
	if _, err := r.col.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("message already exists")
		}
		return apperr.TransientIO("insert message", err)
	}
	return nil
}

func (r *mongoMessages) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.TransientIO("get message", err)
	}
	return &m, nil
}

func (r *mongoMessages) List(ctx context.Context, conversationID string, limit int64, before time.Time) ([]*models.Message, error) {
	filter := bson.M{"conversation_id": conversationID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.TransientIO("list messages", err)
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, apperr.TransientIO("decode message", err)
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.TransientIO("list messages", err)
	}
	// chronological order for the caller
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *mongoMessages) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": readerID},
		"read_by.user_id": bson.M{"$ne": readerID},
	}
	update := bson.M{
		"$push": bson.M{"read_by": models.ReadReceipt{UserID: readerID, ReadAt: at}},
		"$set":  bson.M{"status": models.StatusRead},
	}
	res, err := r.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, apperr.TransientIO("mark read", err)
	}
	return res.ModifiedCount, nil
}

func (r *mongoMessages) SetReaction(ctx context.Context, messageID string, reaction models.Reaction) (*models.Message, error) {
	// One pipeline update so concurrent reactions by the same user
	// cannot leave two entries: filter out their previous reaction and
	// append the new one in a single document write.
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reactions": bson.M{"$concatArrays": bson.A{
				bson.M{"$filter": bson.M{
					"input": bson.M{"$ifNull": bson.A{"$reactions", bson.A{}}},
					"as":    "r",
					"cond":  bson.M{"$ne": bson.A{"$$r.user_id", reaction.UserID}},
				}},
				bson.A{bson.M{"$literal": reaction}},
			}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.Message
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": messageID}, pipeline, opts).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.TransientIO("set reaction", err)
	}
	return &m, nil
}

func (r *mongoMessages) RemoveReaction(ctx context.Context, messageID, userID string) (*models.Message, error) {
	return r.findAndUpdate(ctx, messageID, bson.M{
		"$pull": bson.M{"reactions": bson.M{"user_id": userID}},
	})
}

func (r *mongoMessages) Edit(ctx context.Context, messageID, content string, at time.Time) (*models.Message, error) {
	return r.findAndUpdate(ctx, messageID, bson.M{
		"$set": bson.M{"content": content, "is_edited": true, "edited_at": at},
	})
}

func (r *mongoMessages) Tombstone(ctx context.Context, messageID string) (*models.Message, error) {
	return r.findAndUpdate(ctx, messageID, bson.M{
		"$set": bson.M{
			"content":    models.DeletedMarker,
			"media_url":  "",
			"media_name": "",
			"is_deleted": true,
		},
	})
}

func (r *mongoMessages) SetPinned(ctx context.Context, messageID string, pinned bool) (*models.Message, error) {
	return r.findAndUpdate(ctx, messageID, bson.M{
		"$set": bson.M{"is_pinned": pinned},
	})
}

func (r *mongoMessages) findAndUpdate(ctx context.Context, id string, update bson.M) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.Message
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.TransientIO("update message", err)
	}
	return &m, nil
}
