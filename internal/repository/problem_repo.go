package repository

import (
	"codepair/internal/model"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProblemRepo reads the problem catalog for starter code.
type ProblemRepo interface {
	GetByTitle(ctx context.Context, title string) (*model.CatalogProblem, error)
	Upsert(ctx context.Context, problem *model.CatalogProblem) error
}

type problemRepo struct {
	collection *mongo.Collection
}

// NewProblemRepo creates a new problem catalog repository
func NewProblemRepo(db *mongo.Database) ProblemRepo {
	return &problemRepo{
		collection: db.Collection("problems"),
	}
}

func (r *problemRepo) GetByTitle(ctx context.Context, title string) (*model.CatalogProblem, error) {
	var problem model.CatalogProblem
	err := r.collection.FindOne(ctx, bson.M{"title": title}).Decode(&problem)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &problem, nil
}

// Upsert replaces the catalog entry with the same id.
func (r *problemRepo) Upsert(ctx context.Context, problem *model.CatalogProblem) error {
	if problem.ID == "" {
		problem.ID = model.Slug(problem.Title)
	}
	if problem.ID == "" {
		problem.ID = model.ProblemKey(problem.Title)
	}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"id": problem.ID}, problem, options.Replace().SetUpsert(true))
	return err
}
