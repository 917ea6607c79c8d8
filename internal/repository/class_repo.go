package repository

import (
	"context"

	"github.com/LuckiPhoenix/idest-server/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ClassRepo reads roster data owned by the class subsystem.
type ClassRepo interface {
	GetByID(ctx context.Context, id string) (*model.Class, error)
}

type classRepo struct {
	collection *mongo.Collection
}

func NewClassRepo(db *mongo.Database) ClassRepo {
	return &classRepo{
		collection: db.Collection("classes"),
	}
}

func (r *classRepo) GetByID(ctx context.Context, id string) (*model.Class, error) {
	var class model.Class
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&class)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Class not found
		}
		return nil, err
	}
	return &class, nil
}
