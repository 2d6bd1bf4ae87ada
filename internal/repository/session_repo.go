package repository

import (
	"codepair/internal/model"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionRepo persists interview sessions. Conditional updates return
// (nil, nil) when the document is missing or the guard predicate no longer
// holds; callers re-read to tell the two apart.
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	GetByRoomID(ctx context.Context, roomID string) (*model.Session, error)
	ListByStatus(ctx context.Context, status model.SessionStatus, limit int) ([]*model.Session, error)
	ListCompletedForUser(ctx context.Context, userID string, limit int) ([]*model.Session, error)

	// SetParticipant admits userID only while the slot is empty and starts
	// timing the active problem if nothing is being timed yet.
	SetParticipant(ctx context.Context, id, userID string, at time.Time) (*model.Session, error)
	Complete(ctx context.Context, id, hostID string) (*model.Session, error)
	SetDecision(ctx context.Context, id, hostID string, decision *model.Decision) (*model.Session, error)
	UpdateEvaluation(ctx context.Context, id, hostID string, update model.SessionUpdate) (*model.Session, error)
	ReplaceTimings(ctx context.Context, id, hostID string, timings []model.Timing, timeTaken int) (*model.Session, error)

	// Checkpoint saves the outgoing problem's code and closes its timing
	// entry, guarded on the problem still being active.
	Checkpoint(ctx context.Context, id, hostID string, cp model.Checkpoint) (*model.Session, error)
	// ActivateProblem moves the active problem from -> to, closing any open
	// timing entry and opening one for to.
	ActivateProblem(ctx context.Context, id, hostID, from string, to model.Problem, at time.Time) (*model.Session, error)
	SaveCode(ctx context.Context, id, userID, problemKey, code string) (*model.Session, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

// NewSessionRepo creates a new session repository
func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

// EnsureSessionIndexes creates the indexes the session queries rely on.
func EnsureSessionIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("sessions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "host", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "participant", Value: 1}, {Key: "status", Value: 1}}},
	})
	return err
}

// NewID returns a fresh document id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		session.ID = NewID()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Tags == nil {
		session.Tags = []string{}
	}
	if session.SavedCode == nil {
		session.SavedCode = map[string]string{}
	}

	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *sessionRepo) GetByRoomID(ctx context.Context, roomID string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"roomId": roomID})
}

func (r *sessionRepo) ListByStatus(ctx context.Context, status model.SessionStatus, limit int) ([]*model.Session, error) {
	return r.findNewest(ctx, bson.M{"status": status}, limit)
}

func (r *sessionRepo) ListCompletedForUser(ctx context.Context, userID string, limit int) ([]*model.Session, error) {
	return r.findNewest(ctx, bson.M{
		"status": model.SessionCompleted,
		"$or":    bson.A{bson.M{"host": userID}, bson.M{"participant": userID}},
	}, limit)
}

func (r *sessionRepo) SetParticipant(ctx context.Context, id, userID string, at time.Time) (*model.Session, error) {
	filter := bson.M{
		"_id":         id,
		"status":      model.SessionActive,
		"participant": "",
		"host":        bson.M{"$ne": userID},
	}

	timings := bson.M{"$ifNull": bson.A{"$timings", bson.A{}}}
	anyOpen := bson.M{"$anyElementTrue": bson.A{bson.M{"$map": bson.M{
		"input": timings,
		"as":    "t",
		"in":    bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$$t.endTime", nil}}, nil}},
	}}}}
	opened := bson.M{
		"problemId": "$problem",
		"startTime": at,
		"endTime":   nil,
		"duration":  nil,
	}
	set := bson.D{
		{Key: "participant", Value: bson.M{"$literal": userID}},
		{Key: "timings", Value: bson.M{"$cond": bson.A{
			anyOpen,
			timings,
			bson.M{"$concatArrays": bson.A{timings, bson.A{opened}}},
		}}},
		{Key: "updatedAt", Value: at},
	}
	return r.findOneAndUpdate(ctx, filter, mongo.Pipeline{{{Key: "$set", Value: set}}})
}

func (r *sessionRepo) Complete(ctx context.Context, id, hostID string) (*model.Session, error) {
	filter := bson.M{"_id": id, "host": hostID, "status": model.SessionActive}
	return r.findOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{
		"status":    model.SessionCompleted,
		"updatedAt": time.Now().UTC(),
	}})
}

func (r *sessionRepo) SetDecision(ctx context.Context, id, hostID string, decision *model.Decision) (*model.Session, error) {
	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "host": hostID}, bson.M{"$set": bson.M{
		"decision":  decision,
		"updatedAt": time.Now().UTC(),
	}})
}

func (r *sessionRepo) UpdateEvaluation(ctx context.Context, id, hostID string, update model.SessionUpdate) (*model.Session, error) {
	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "host": hostID}, bson.M{"$set": evaluationSet(update, time.Now().UTC())})
}

// evaluationSet builds the $set document for the fields present in update.
func evaluationSet(update model.SessionUpdate, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if update.Notes != nil {
		set["notes"] = *update.Notes
	}
	if update.Rating != nil {
		set["rating"] = *update.Rating
	}
	if update.Tags != nil {
		tags := *update.Tags
		if tags == nil {
			tags = []string{}
		}
		set["tags"] = tags
	}
	if update.TimeTaken != nil {
		set["timeTaken"] = *update.TimeTaken
	}
	if update.TestCasesPassed != nil {
		set["testCasesPassed"] = *update.TestCasesPassed
	}
	return set
}

func (r *sessionRepo) ReplaceTimings(ctx context.Context, id, hostID string, timings []model.Timing, timeTaken int) (*model.Session, error) {
	if timings == nil {
		timings = []model.Timing{}
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "host": hostID}, bson.M{"$set": bson.M{
		"timings":   timings,
		"timeTaken": timeTaken,
		"updatedAt": time.Now().UTC(),
	}})
}

func (r *sessionRepo) Checkpoint(ctx context.Context, id, hostID string, cp model.Checkpoint) (*model.Session, error) {
	filter := bson.M{
		"_id":     id,
		"host":    hostID,
		"status":  model.SessionActive,
		"problem": cp.Title,
	}

	set := bson.D{
		{Key: "timings", Value: closeOpenTimings(cp.At)},
		{Key: "updatedAt", Value: cp.At},
	}
	if cp.Code != nil {
		set = append(set, bson.E{Key: "savedCode", Value: bson.M{"$mergeObjects": bson.A{
			bson.M{"$ifNull": bson.A{"$savedCode", bson.M{}}},
			bson.M{model.ProblemKey(cp.Title): bson.M{"$literal": *cp.Code}},
		}}})
	}

	return r.findOneAndUpdate(ctx, filter, mongo.Pipeline{{{Key: "$set", Value: set}}})
}

func (r *sessionRepo) ActivateProblem(ctx context.Context, id, hostID, from string, to model.Problem, at time.Time) (*model.Session, error) {
	filter := bson.M{
		"_id":     id,
		"host":    hostID,
		"status":  model.SessionActive,
		"problem": from,
	}

	opened := bson.M{
		"problemId": bson.M{"$literal": to.Title},
		"startTime": at,
		"endTime":   nil,
		"duration":  nil,
	}
	set := bson.D{
		{Key: "problem", Value: bson.M{"$literal": to.Title}},
		{Key: "difficulty", Value: bson.M{"$literal": to.Difficulty}},
		{Key: "timings", Value: bson.M{"$concatArrays": bson.A{closeOpenTimings(at), bson.A{opened}}}},
		{Key: "updatedAt", Value: at},
	}

	return r.findOneAndUpdate(ctx, filter, mongo.Pipeline{{{Key: "$set", Value: set}}})
}

// closeOpenTimings is an aggregation expression that stamps endTime and the
// whole-second duration on every timing entry whose endTime is still null.
func closeOpenTimings(at time.Time) bson.M {
	return bson.M{"$map": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$timings", bson.A{}}},
		"as":    "t",
		"in": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$$t.endTime", nil}}, nil}},
			bson.M{"$mergeObjects": bson.A{"$$t", bson.M{
				"endTime": at,
				"duration": bson.M{"$toLong": bson.M{"$floor": bson.M{"$divide": bson.A{
					bson.M{"$subtract": bson.A{at, "$$t.startTime"}},
					1000,
				}}}},
			}}},
			"$$t",
		}},
	}}
}

func (r *sessionRepo) SaveCode(ctx context.Context, id, userID, problemKey, code string) (*model.Session, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{bson.M{"host": userID}, bson.M{"participant": userID}},
	}
	return r.findOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{
		"savedCode." + problemKey: code,
		"updatedAt":               time.Now().UTC(),
	}})
}

func (r *sessionRepo) findOne(ctx context.Context, filter bson.M) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) findOneAndUpdate(ctx context.Context, filter bson.M, update interface{}) (*model.Session, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session model.Session
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) findNewest(ctx context.Context, filter bson.M, limit int) ([]*model.Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []*model.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
