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

// UserRepo stores the internal records of identity-provider users.
type UserRepo interface {
	// Upsert creates or refreshes the user keyed by ExternalID and reports
	// whether a new record was inserted.
	Upsert(ctx context.Context, user *model.User) (*model.User, bool, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)
}

type userRepo struct {
	collection *mongo.Collection
}

// NewUserRepo creates a new user repository
func NewUserRepo(db *mongo.Database) UserRepo {
	return &userRepo{
		collection: db.Collection("users"),
	}
}

// EnsureUserIndexes makes externalId unique so concurrent upserts converge.
func EnsureUserIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "externalId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *userRepo) Upsert(ctx context.Context, user *model.User) (*model.User, bool, error) {
	now := time.Now().UTC()
	newID := primitive.NewObjectID().Hex()

	update := bson.M{
		"$set": bson.M{
			"name":         user.Name,
			"email":        user.Email,
			"profileImage": user.ProfileImage,
			"updatedAt":    now,
		},
		"$setOnInsert": bson.M{
			"_id":       newID,
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var saved model.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"externalId": user.ExternalID}, update, opts).Decode(&saved)
	if err != nil {
		return nil, false, err
	}
	return &saved, saved.ID == newID, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *userRepo) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"externalId": externalID})
}

func (r *userRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var user model.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	users := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var found []*model.User
	if err := cursor.All(ctx, &found); err != nil {
		return nil, err
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}
