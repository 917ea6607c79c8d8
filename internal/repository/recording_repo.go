package repository

import (
	"context"
	"time"

	"github.com/LuckiPhoenix/idest-server/internal/model"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordingRepo persists recording runs. The unique egress id is the
// serialization point between webhook deliveries and direct API calls racing
// on the same run.
type RecordingRepo interface {
	UpsertByEgressID(ctx context.Context, run *model.RecordingRun) (*model.RecordingRun, error)
	GetByEgressID(ctx context.Context, egressID string) (*model.RecordingRun, error)
	ListBySession(ctx context.Context, sessionID string) ([]*model.RecordingRun, error)
}

// terminalStatuses backs the filter that keeps a finished run from being
// overwritten by a stale non-terminal event.
var terminalStatuses = []model.RecordingStatus{
	model.RecordingComplete,
	model.RecordingFailed,
	model.RecordingAborted,
	model.RecordingLimitReached,
}

type recordingRepo struct {
	collection *mongo.Collection
}

func NewRecordingRepo(db *mongo.Database) RecordingRepo {
	repo := &recordingRepo{
		collection: db.Collection("recording_runs"),
	}
	// The unique index makes the upsert-by-egress-id the serialization
	// point for racing webhook and direct-call writes.
	repo.collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.M{"egressId": 1},
		Options: options.Index().SetUnique(true),
	})
	return repo
}

// UpsertByEgressID creates or updates the run keyed by egress id and returns
// the stored document. Set fields overwrite; _id and createdAt are only
// written on insert. A non-terminal write filters on the stored status, so
// it can never overwrite a terminal run no matter how deliveries interleave:
// the filter misses, the upsert attempts an insert, and the unique index
// rejects it — which is reported back as the untouched stored run.
func (r *recordingRepo) UpsertByEgressID(ctx context.Context, run *model.RecordingRun) (*model.RecordingRun, error) {
	now := time.Now().UTC()
	set := bson.M{
		"sessionId": run.SessionID,
		"status":    run.Status,
		"updatedAt": now,
	}
	if run.Location != "" {
		set["location"] = run.Location
	}
	if run.Filename != "" {
		set["filename"] = run.Filename
	}
	if run.StartedAt != nil {
		set["startedAt"] = run.StartedAt
	}
	if run.EndedAt != nil {
		set["endedAt"] = run.EndedAt
	}
	if run.Duration != 0 {
		set["duration"] = run.Duration
	}
	if run.SizeBytes != 0 {
		set["sizeBytes"] = run.SizeBytes
	}
	if run.Error != "" {
		set["error"] = run.Error
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"_id":       uuid.New().String(),
			"egressId":  run.EgressID,
			"createdAt": now,
		},
	}

	filter := bson.M{"egressId": run.EgressID}
	if !run.Status.IsTerminal() {
		filter["status"] = bson.M{"$nin": terminalStatuses}
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored model.RecordingRun
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if err != nil {
		if !run.Status.IsTerminal() && mongo.IsDuplicateKeyError(err) {
			// The stored run is terminal; the stale write was dropped.
			return r.GetByEgressID(ctx, run.EgressID)
		}
		return nil, err
	}
	return &stored, nil
}

func (r *recordingRepo) GetByEgressID(ctx context.Context, egressID string) (*model.RecordingRun, error) {
	var run model.RecordingRun
	err := r.collection.FindOne(ctx, bson.M{"egressId": egressID}).Decode(&run)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Run not found
		}
		return nil, err
	}
	return &run, nil
}

func (r *recordingRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.RecordingRun, error) {
	opts := options.Find().SetSort(bson.M{"createdAt": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []*model.RecordingRun
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
