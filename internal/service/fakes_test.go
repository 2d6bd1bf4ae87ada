package service

import (
	"codepair/internal/model"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeSessionRepo mirrors the guarded updates of the Mongo repository.
type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	createErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*model.Session{}}
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	c.Problems = append([]model.Problem(nil), s.Problems...)
	c.Tags = append([]string(nil), s.Tags...)
	c.Timings = append([]model.Timing(nil), s.Timings...)
	c.SavedCode = make(map[string]string, len(s.SavedCode))
	for k, v := range s.SavedCode {
		c.SavedCode[k] = v
	}
	if s.Decision != nil {
		d := *s.Decision
		c.Decision = &d
	}
	return &c
}

func (r *fakeSessionRepo) put(s *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = cloneSession(s)
}

func (r *fakeSessionRepo) get(id string) *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return cloneSession(s)
	}
	return nil
}

// update applies fn to the stored session when guard holds.
func (r *fakeSessionRepo) update(id string, guard func(*model.Session) bool, fn func(*model.Session)) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !guard(s) {
		return nil, nil
	}
	fn(s)
	s.UpdatedAt = time.Now().UTC()
	return cloneSession(s), nil
}

func closeOpen(s *model.Session, at time.Time) {
	for i := range s.Timings {
		if s.Timings[i].Open() {
			end := at
			d := int64(at.Sub(s.Timings[i].StartTime) / time.Second)
			s.Timings[i].EndTime = &end
			s.Timings[i].Duration = &d
		}
	}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *model.Session) error {
	if r.createErr != nil {
		return r.createErr
	}
	s.CreatedAt = time.Now().UTC()
	r.put(s)
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	return r.get(id), nil
}

func (r *fakeSessionRepo) GetByRoomID(_ context.Context, roomID string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RoomID == roomID {
			return cloneSession(s), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) list(match func(*model.Session) bool, limit int) []*model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Session{}
	for _, s := range r.sessions {
		if match(s) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *fakeSessionRepo) ListByStatus(_ context.Context, status model.SessionStatus, limit int) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool { return s.Status == status }, limit), nil
}

func (r *fakeSessionRepo) ListCompletedForUser(_ context.Context, userID string, limit int) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool {
		return s.Status == model.SessionCompleted && (s.Host == userID || s.Participant == userID)
	}, limit), nil
}

func (r *fakeSessionRepo) SetParticipant(_ context.Context, id, userID string, at time.Time) (*model.Session, error) {
	return r.update(id, func(s *model.Session) bool {
		return s.IsActive() && s.Participant == "" && s.Host != userID
	}, func(s *model.Session) {
		s.Participant = userID
		if s.OpenTiming() < 0 {
			s.Timings = append(s.Timings, model.Timing{ProblemID: s.Problem, StartTime: at})
		}
	})
}

func (r *fakeSessionRepo) Complete(_ context.Context, id, hostID string) (*model.Session, error) {
	return r.update(id, func(s *model.Session) bool {
		return s.Host == hostID && s.IsActive()
	}, func(s *model.Session) {
		s.Status = model.SessionCompleted
	})
}

func isHost(hostID string) func(*model.Session) bool {
	return func(s *model.Session) bool { return s.Host == hostID }
}

func (r *fakeSessionRepo) SetDecision(_ context.Context, id, hostID string, d *model.Decision) (*model.Session, error) {
	return r.update(id, isHost(hostID), func(s *model.Session) { s.Decision = d })
}

func (r *fakeSessionRepo) UpdateEvaluation(_ context.Context, id, hostID string, u model.SessionUpdate) (*model.Session, error) {
	return r.update(id, isHost(hostID), func(s *model.Session) {
		if u.Notes != nil {
			s.Notes = *u.Notes
		}
		if u.Rating != nil {
			s.Rating = *u.Rating
		}
		if u.Tags != nil {
			s.Tags = *u.Tags
		}
		if u.TimeTaken != nil {
			s.TimeTaken = *u.TimeTaken
		}
		if u.TestCasesPassed != nil {
			s.TestCasesPassed = *u.TestCasesPassed
		}
	})
}

func (r *fakeSessionRepo) ReplaceTimings(_ context.Context, id, hostID string, timings []model.Timing, timeTaken int) (*model.Session, error) {
	return r.update(id, isHost(hostID), func(s *model.Session) {
		s.Timings = append([]model.Timing{}, timings...)
		s.TimeTaken = timeTaken
	})
}

func (r *fakeSessionRepo) Checkpoint(_ context.Context, id, hostID string, cp model.Checkpoint) (*model.Session, error) {
	return r.update(id, func(s *model.Session) bool {
		return s.Host == hostID && s.IsActive() && s.Problem == cp.Title
	}, func(s *model.Session) {
		closeOpen(s, cp.At)
		if cp.Code != nil {
			s.SavedCode[model.ProblemKey(cp.Title)] = *cp.Code
		}
	})
}

func (r *fakeSessionRepo) ActivateProblem(_ context.Context, id, hostID, from string, to model.Problem, at time.Time) (*model.Session, error) {
	return r.update(id, func(s *model.Session) bool {
		return s.Host == hostID && s.IsActive() && s.Problem == from
	}, func(s *model.Session) {
		closeOpen(s, at)
		s.Problem = to.Title
		s.Difficulty = to.Difficulty
		s.Timings = append(s.Timings, model.Timing{ProblemID: to.Title, StartTime: at})
	})
}

func (r *fakeSessionRepo) SaveCode(_ context.Context, id, userID, key, code string) (*model.Session, error) {
	return r.update(id, func(s *model.Session) bool {
		return s.Host == userID || s.Participant == userID
	}, func(s *model.Session) {
		s.SavedCode[key] = code
	})
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User // by id
	seq   int
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		c := *u
		r.users[u.ID] = &c
	}
	return r
}

func (r *fakeUserRepo) Upsert(_ context.Context, user *model.User) (*model.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ExternalID == user.ExternalID {
			u.Name, u.Email, u.ProfileImage = user.Name, user.Email, user.ProfileImage
			c := *u
			return &c, false, nil
		}
	}
	r.seq++
	c := *user
	c.ID = fmt.Sprintf("user-%d", r.seq)
	r.users[c.ID] = &c
	out := c
	return &out, true, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ExternalID == externalID {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, ids []string) (map[string]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]*model.User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			c := *u
			out[id] = &c
		}
	}
	return out, nil
}

type fakeProblemRepo struct {
	problems map[string]*model.CatalogProblem // by title
	err      error
}

func (r *fakeProblemRepo) GetByTitle(_ context.Context, title string) (*model.CatalogProblem, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.problems[title], nil
}

func (r *fakeProblemRepo) Upsert(_ context.Context, p *model.CatalogProblem) error {
	r.problems[p.Title] = p
	return nil
}

type fakeComms struct {
	mu         sync.Mutex
	created   []RoomSpec
	members   []string
	deleted   []string
	upserted  []string
	createErr error
	deleteErr error
	addErr    error
	upsertErr error
}

func (c *fakeComms) CreateRoom(_ context.Context, room RoomSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return c.createErr
	}
	c.created = append(c.created, room)
	return nil
}

func (c *fakeComms) AddMember(_ context.Context, roomID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = append(c.members, roomID+"/"+userID)
	return c.addErr
}

func (c *fakeComms) DeleteRoom(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, roomID)
	return c.deleteErr
}

func (c *fakeComms) UpsertUser(_ context.Context, user *model.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserted = append(c.upserted, user.ExternalID)
	return c.upsertErr
}

func (c *fakeComms) UserToken(userID string) (string, error) {
	return "token-" + userID, nil
}

// event is one recorded Broadcaster call.
type event struct {
	kind   string
	roomID string
	except string
	data   interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []event
	live   map[string]model.RoomState
}

func (b *fakeBroadcaster) record(e event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *fakeBroadcaster) PublishCode(roomID, except string, c model.CodeChange) {
	b.record(event{"code", roomID, except, c})
}

func (b *fakeBroadcaster) PublishOutput(roomID, except string, o *model.RunOutput) {
	b.record(event{"output", roomID, except, o})
}

func (b *fakeBroadcaster) PublishProblem(roomID, except string, p model.ProblemChanged) {
	b.record(event{"problem", roomID, except, p})
}

func (b *fakeBroadcaster) ResetEditor(roomID string) {
	b.record(event{"reset", roomID, "", nil})
}

func (b *fakeBroadcaster) CloseRoom(roomID string) {
	b.record(event{"close", roomID, "", nil})
}

func (b *fakeBroadcaster) Snapshot(roomID string) (model.RoomState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.live[roomID]
	return st, ok
}

func (b *fakeBroadcaster) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.kind
	}
	return out
}

type fakeExecutor struct {
	output *model.RunOutput
	err    error
}

func (e *fakeExecutor) Execute(context.Context, string, string) (*model.RunOutput, error) {
	return e.output, e.err
}

var errBoom = errors.New("boom")

// fixture users
var (
	hostUser      = &model.User{ID: "u-host", ExternalID: "ext-host", Name: "Hana Host"}
	candidateUser = &model.User{ID: "u-cand", ExternalID: "ext-cand", Name: "Cal Candidate"}
	otherUser     = &model.User{ID: "u-other", ExternalID: "ext-other", Name: "Olu Other"}
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
