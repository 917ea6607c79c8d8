package repository

import (
	"context"

	"github.com/LuckiPhoenix/idest-server/internal/model"
	"go.mongodb.org/mongo-driver/mongo"
)

// ChatRepo persists session chat. Writers on the join/leave path treat
// failures as best-effort.
type ChatRepo interface {
	Insert(ctx context.Context, msg *model.ChatMessage) error
}

type chatRepo struct {
	collection *mongo.Collection
}

func NewChatRepo(db *mongo.Database) ChatRepo {
	return &chatRepo{
		collection: db.Collection("chat_messages"),
	}
}

func (r *chatRepo) Insert(ctx context.Context, msg *model.ChatMessage) error {
	_, err := r.collection.InsertOne(ctx, msg)
	return err
}
