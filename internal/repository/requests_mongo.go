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

type mongoRequests struct {
	col *mongo.Collection
}

func NewMongoRequests(col *mongo.Collection) Requests {
	return &mongoRequests{col: col}
}

func (r *mongoRequests) Create(ctx context.Context, req *models.MessageRequest) error {
	now := time.Now().UTC()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = models.RequestPending
	req.CreatedAt = now
	req.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("request already exists for this pair")
		}
		return apperr.TransientIO("create request", err)
	}
	return nil
}

func (r *mongoRequests) GetByID(ctx context.Context, id string) (*models.MessageRequest, error) {
	var req models.MessageRequest
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("request not found")
		}
		return nil, apperr.TransientIO("get request", err)
	}
	return &req, nil
}

func (r *mongoRequests) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) (*models.MessageRequest, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}}
	var req models.MessageRequest
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.TransientIO("update request", err)
	}
	// distinguish missing from already-transitioned
	if _, gerr := r.GetByID(ctx, id); gerr != nil {
		return nil, gerr
	}
	return nil, apperr.Conflict("request is not " + string(from))
}
