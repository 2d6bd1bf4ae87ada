package repository

import (
	"codepair/internal/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func sessionDoc(extra ...bson.E) bson.D {
	doc := bson.D{
		{Key: "_id", Value: "s1"},
		{Key: "problems", Value: bson.A{
			bson.D{{Key: "title", Value: "Two Sum"}, {Key: "difficulty", Value: "easy"}},
			bson.D{{Key: "title", Value: "LRU Cache"}, {Key: "difficulty", Value: "medium"}},
		}},
		{Key: "problem", Value: "Two Sum"},
		{Key: "difficulty", Value: "easy"},
		{Key: "host", Value: "u-host"},
		{Key: "participant", Value: ""},
		{Key: "status", Value: "active"},
		{Key: "roomId", Value: "session_01abc"},
	}
	return append(doc, extra...)
}

func foundAndModified(doc bson.D) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc})
}

func nothingModified() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
}

// sentCommand returns field key of the last command sent.
func sentCommand(mt *mtest.T, key string) bson.RawValue {
	mt.Helper()
	evt := mt.GetStartedEvent()
	require.NotNil(mt, evt)
	return evt.Command.Lookup(key)
}

func TestSessionRepo_GetByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "codepair.sessions", mtest.FirstBatch, sessionDoc()))

		s, err := repo.GetByID(context.Background(), "s1")
		require.NoError(mt, err)
		require.NotNil(mt, s)
		assert.Equal(mt, "Two Sum", s.Problem)
		assert.Len(mt, s.Problems, 2)
		assert.Equal(mt, model.RoleHost, s.RoleOf("u-host"))
	})

	mt.Run("missing", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "codepair.sessions", mtest.FirstBatch))

		s, err := repo.GetByID(context.Background(), "nope")
		require.NoError(mt, err)
		assert.Nil(mt, s)
	})
}

func TestSessionRepo_Create(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("fills defaults", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		s := &model.Session{Host: "u-host", RoomID: "session_01abc", Status: model.SessionActive}
		require.NoError(mt, repo.Create(context.Background(), s))

		assert.NotEmpty(mt, s.ID)
		assert.NotNil(mt, s.Tags)
		assert.NotNil(mt, s.SavedCode)
		assert.False(mt, s.CreatedAt.IsZero())
	})

	mt.Run("duplicate room id", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := repo.Create(context.Background(), &model.Session{RoomID: "session_01abc"})
		require.Error(mt, err)
		assert.True(mt, mongo.IsDuplicateKeyError(err))
	})
}

func TestSessionRepo_SetParticipant(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("guards on empty slot", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		joined := sessionDoc(bson.E{Key: "timings", Value: bson.A{
			bson.D{{Key: "problemId", Value: "Two Sum"}, {Key: "startTime", Value: at}, {Key: "endTime", Value: nil}},
		}})
		joined[5] = bson.E{Key: "participant", Value: "u-cand"}
		mt.AddMockResponses(foundAndModified(joined))

		s, err := repo.SetParticipant(context.Background(), "s1", "u-cand", at)
		require.NoError(mt, err)
		require.NotNil(mt, s)
		assert.Equal(mt, "u-cand", s.Participant)
		assert.Equal(mt, 0, s.OpenTiming())

		query := sentCommand(mt, "query").Document()
		assert.Equal(mt, "", query.Lookup("participant").StringValue())
		assert.Equal(mt, "active", query.Lookup("status").StringValue())
		assert.Equal(mt, "u-cand", query.Lookup("host", "$ne").StringValue())
	})

	mt.Run("slot taken", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(nothingModified())

		s, err := repo.SetParticipant(context.Background(), "s1", "u-late", at)
		require.NoError(mt, err)
		assert.Nil(mt, s)
	})

	mt.Run("update is a pipeline", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(nothingModified())

		_, err := repo.SetParticipant(context.Background(), "s1", "u-cand", at)
		require.NoError(mt, err)

		update := sentCommand(mt, "update")
		assert.Equal(mt, bson.TypeArray, update.Type)
	})
}

func TestSessionRepo_Checkpoint(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 1, 1, 10, 2, 30, 0, time.UTC)

	stageSet := func(mt *mtest.T) bson.Raw {
		mt.Helper()
		stages, err := sentCommand(mt, "update").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, stages, 1)
		return stages[0].Document().Lookup("$set").Document()
	}

	mt.Run("with code", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(foundAndModified(sessionDoc()))

		code := "function twoSum() {}"
		s, err := repo.Checkpoint(context.Background(), "s1", "u-host", model.Checkpoint{Title: "Two Sum", Code: &code, At: at})
		require.NoError(mt, err)
		require.NotNil(mt, s)

		set := stageSet(mt)
		_, err = set.LookupErr("savedCode")
		assert.NoError(mt, err)
		_, err = set.LookupErr("timings")
		assert.NoError(mt, err)
	})

	mt.Run("without code keeps saved code", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(foundAndModified(sessionDoc()))

		_, err := repo.Checkpoint(context.Background(), "s1", "u-host", model.Checkpoint{Title: "Two Sum", At: at})
		require.NoError(mt, err)

		_, err = stageSet(mt).LookupErr("savedCode")
		assert.Error(mt, err)
	})

	mt.Run("guards on active problem", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		mt.AddMockResponses(nothingModified())

		s, err := repo.Checkpoint(context.Background(), "s1", "u-host", model.Checkpoint{Title: "LRU Cache", At: at})
		require.NoError(mt, err)
		assert.Nil(mt, s)

		query := sentCommand(mt, "query").Document()
		assert.Equal(mt, "LRU Cache", query.Lookup("problem").StringValue())
		assert.Equal(mt, "u-host", query.Lookup("host").StringValue())
	})
}

func TestSessionRepo_ListCompletedForUser(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("newest first, capped", func(mt *mtest.T) {
		repo := &sessionRepo{collection: mt.Coll}
		first := sessionDoc()
		second := sessionDoc()
		second[0] = bson.E{Key: "_id", Value: "s2"}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "codepair.sessions", mtest.FirstBatch, first, second))

		sessions, err := repo.ListCompletedForUser(context.Background(), "u-cand", 20)
		require.NoError(mt, err)
		require.Len(mt, sessions, 2)
		assert.Equal(mt, "s2", sessions[1].ID)

		evt := mt.GetStartedEvent()
		assert.EqualValues(mt, 20, evt.Command.Lookup("limit").AsInt64())
		assert.EqualValues(mt, -1, evt.Command.Lookup("sort", "createdAt").AsInt64())
		assert.Equal(mt, "completed", evt.Command.Lookup("filter", "status").StringValue())
	})
}

func TestEvaluationSetOnlyPresentFields(t *testing.T) {
	now := time.Now()
	notes := "good communication"
	rating := 4

	set := evaluationSet(model.SessionUpdate{Notes: &notes, Rating: &rating}, now)

	assert.Equal(t, bson.M{"notes": notes, "rating": 4, "updatedAt": now}, set)

	var nilTags []string
	set = evaluationSet(model.SessionUpdate{Tags: &nilTags}, now)
	assert.Equal(t, []string{}, set["tags"])
}
