package service

import (
	"codepair/internal/apperr"
	"codepair/internal/model"
	"codepair/internal/repository"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

const listLimit = 20

// ProblemInput is one requested problem of a new session.
type ProblemInput struct {
	Title      string `json:"title" validate:"required"`
	Difficulty string `json:"difficulty" validate:"required,oneof=easy medium hard"`
}

// CreateSessionRequest is the body of a session creation.
type CreateSessionRequest struct {
	Problems []ProblemInput `json:"problems" validate:"required,min=1,dive"`
}

// SessionService handles the session lifecycle: creation, admission,
// evaluation and ending.
type SessionService struct {
	sessions    repository.SessionRepo
	users       repository.UserRepo
	comms       Communicator
	broadcaster Broadcaster
	validate    *validator.Validate
	now         func() time.Time
	newRoomID   func() string
}

// NewSessionService creates a new session service
func NewSessionService(sessions repository.SessionRepo, users repository.UserRepo, comms Communicator) *SessionService {
	return &SessionService{
		sessions:    sessions,
		users:       users,
		comms:       comms,
		broadcaster: nopBroadcaster{},
		validate:    validator.New(),
		now:         func() time.Time { return time.Now().UTC() },
		newRoomID:   newRoomID,
	}
}

// SetBroadcaster sets the room broadcaster (called after hub is created)
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func newRoomID() string {
	return "session_" + strings.ToLower(ulid.Make().String())
}

// Create opens a new session hosted by host. The provider room is created
// first; if the session cannot be stored afterwards the room is removed.
func (s *SessionService) Create(ctx context.Context, host *model.User, req CreateSessionRequest) (*model.SessionView, error) {
	problems, err := s.normalizeProblems(req)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:          repository.NewID(),
		Problems:    problems,
		Problem:     problems[0].Title,
		Difficulty:  problems[0].Difficulty,
		Host:        host.ID,
		Participant: "",
		Status:      model.SessionActive,
		RoomID:      s.newRoomID(),
		Tags:        []string{},
		Timings:     []model.Timing{},
		SavedCode:   map[string]string{},
	}

	err = s.comms.CreateRoom(ctx, RoomSpec{
		RoomID:    session.RoomID,
		CreatorID: host.ExternalID,
		Name:      session.Problem + " Session",
		Custom: map[string]string{
			"problem":    session.Problem,
			"difficulty": session.Difficulty,
			"sessionId":  session.ID,
		},
	})
	if err != nil {
		log.Printf("[Session] ERROR: provider room for %s failed: %v", session.RoomID, err)
		if apperr.KindOf(err) == apperr.KindDependency {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeProviderFailed, "failed to create video and chat room", err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if derr := s.comms.DeleteRoom(context.WithoutCancel(ctx), session.RoomID); derr != nil {
			log.Printf("[Session] WARNING: orphaned provider room %s: %v", session.RoomID, derr)
		}
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to create session", err)
	}

	log.Printf("[Session] Created %s (room %s) with %d problems", session.ID, session.RoomID, len(problems))
	return &model.SessionView{Session: session.VisibleTo(host.ID), Host: host.Summary()}, nil
}

func (s *SessionService) normalizeProblems(req CreateSessionRequest) ([]model.Problem, error) {
	for i := range req.Problems {
		req.Problems[i].Title = strings.TrimSpace(req.Problems[i].Title)
		req.Problems[i].Difficulty = strings.ToLower(strings.TrimSpace(req.Problems[i].Difficulty))
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidProblems, "problems must be a non-empty list of {title, difficulty}", err)
	}

	// Titles identify problems in switches and timings, so they must be unique.
	seen := make(map[string]bool, len(req.Problems))
	problems := make([]model.Problem, 0, len(req.Problems))
	for _, p := range req.Problems {
		if seen[p.Title] {
			return nil, apperr.New(apperr.CodeInvalidProblems, fmt.Sprintf("duplicate problem %q", p.Title))
		}
		seen[p.Title] = true
		problems = append(problems, model.Problem{Title: p.Title, Difficulty: p.Difficulty})
	}
	return problems, nil
}

// Join admits user as the session's participant.
func (s *SessionService) Join(ctx context.Context, id string, user *model.User) (*model.SessionView, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkJoinable(session, user.ID); err != nil {
		return nil, err
	}

	updated, err := s.sessions.SetParticipant(ctx, id, user.ID, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to join session", err)
	}
	if updated == nil {
		// Lost a race; report whichever precondition no longer holds.
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := checkJoinable(current, user.ID); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.CodeSessionFull, "session is full")
	}

	if err := s.comms.AddMember(ctx, updated.RoomID, user.ExternalID); err != nil {
		log.Printf("[Session] WARNING: failed to add %s to chat of %s: %v", user.ExternalID, updated.RoomID, err)
	}

	log.Printf("[Session] User %s joined %s", user.ID, id)
	return s.view(ctx, updated, user.ID)
}

func checkJoinable(session *model.Session, userID string) error {
	switch {
	case !session.IsActive():
		return apperr.New(apperr.CodeSessionCompleted, "cannot join a completed session")
	case session.Host == userID:
		return apperr.New(apperr.CodeHostCannotJoin, "host cannot join their own session as participant")
	case session.Participant != "":
		return apperr.New(apperr.CodeSessionFull, "session is full")
	}
	return nil
}

// End completes the session and tears down its room. Provider cleanup is
// best-effort once the session is marked completed.
func (s *SessionService) End(ctx context.Context, id, userID string) (*model.SessionView, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Host != userID {
		return nil, apperr.New(apperr.CodeNotHost, "only the host can end the session")
	}
	if !session.IsActive() {
		return nil, apperr.New(apperr.CodeSessionCompleted, "session is already completed")
	}

	updated, err := s.sessions.Complete(ctx, id, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to end session", err)
	}
	if updated == nil {
		return nil, apperr.New(apperr.CodeSessionCompleted, "session is already completed")
	}

	if err := s.comms.DeleteRoom(ctx, updated.RoomID); err != nil {
		log.Printf("[Session] WARNING: provider cleanup for %s failed: %v", updated.RoomID, err)
	}
	s.broadcaster.CloseRoom(updated.RoomID)

	log.Printf("[Session] Ended %s", id)
	return s.view(ctx, updated, userID)
}

// SetDecision records or clears the host's hiring decision.
func (s *SessionService) SetDecision(ctx context.Context, id, userID string, decision *string) (*model.Session, error) {
	var d *model.Decision
	if decision != nil {
		v := model.Decision(*decision)
		if !v.Valid() {
			return nil, apperr.New(apperr.CodeInvalidDecision, "decision must be move_forward, on_hold, rejected or null")
		}
		d = &v
	}

	updated, err := s.sessions.SetDecision(ctx, id, userID, d)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to save decision", err)
	}
	if updated == nil {
		return nil, s.hostMissError(ctx, id)
	}
	return updated, nil
}

// UpdateEvaluation applies a partial update of the host's notes.
func (s *SessionService) UpdateEvaluation(ctx context.Context, id, userID string, update model.SessionUpdate) (*model.NotesBundle, error) {
	if err := s.validate.Struct(update); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidMetadata, "rating must be 0-5 and timeTaken non-negative", err)
	}

	updated, err := s.sessions.UpdateEvaluation(ctx, id, userID, update)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to save notes", err)
	}
	if updated == nil {
		return nil, s.hostMissError(ctx, id)
	}
	return updated.NotesBundle(), nil
}

// UpdateTimings replaces the timing log and recomputes timeTaken.
func (s *SessionService) UpdateTimings(ctx context.Context, id, userID string, timings []model.Timing) (*model.Session, error) {
	if err := validateTimings(timings); err != nil {
		return nil, err
	}

	updated, err := s.sessions.ReplaceTimings(ctx, id, userID, timings, model.TotalMinutes(timings))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to save timings", err)
	}
	if updated == nil {
		return nil, s.hostMissError(ctx, id)
	}
	return updated, nil
}

func validateTimings(timings []model.Timing) error {
	open := 0
	for i, t := range timings {
		if t.ProblemID == "" || t.StartTime.IsZero() {
			return apperr.New(apperr.CodeInvalidTimings, fmt.Sprintf("timing %d needs problemId and startTime", i))
		}
		if t.Duration != nil && *t.Duration < 0 {
			return apperr.New(apperr.CodeInvalidTimings, fmt.Sprintf("timing %d has a negative duration", i))
		}
		if t.Open() {
			open++
		}
	}
	if open > 1 {
		return apperr.New(apperr.CodeInvalidTimings, "at most one timing may be open")
	}
	return nil
}

// GetByID returns the session with host and participant denormalized, as
// viewerID may see it.
func (s *SessionService) GetByID(ctx context.Context, id, viewerID string) (*model.SessionView, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session, viewerID)
}

// Membership returns the session behind roomID and the role userID holds
// in it. Used to authorize realtime connections.
func (s *SessionService) Membership(ctx context.Context, roomID, userID string) (*model.Session, model.Role, error) {
	session, err := s.sessions.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, model.RoleNone, apperr.Wrap(apperr.CodeStorageFailed, "failed to load session", err)
	}
	if session == nil {
		return nil, model.RoleNone, apperr.New(apperr.CodeSessionNotFound, "session not found")
	}
	role := session.RoleOf(userID)
	if role == model.RoleNone {
		return nil, model.RoleNone, apperr.New(apperr.CodeNotMember, "not a member of this session")
	}
	if !session.IsActive() {
		return nil, model.RoleNone, apperr.New(apperr.CodeSessionCompleted, "session has ended")
	}
	return session, role, nil
}

// ListActive returns the newest active sessions.
func (s *SessionService) ListActive(ctx context.Context, viewerID string) ([]*model.SessionView, error) {
	sessions, err := s.sessions.ListByStatus(ctx, model.SessionActive, listLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to list sessions", err)
	}
	return s.views(ctx, sessions, viewerID)
}

// ListRecent returns the newest completed sessions userID took part in.
func (s *SessionService) ListRecent(ctx context.Context, userID string) ([]*model.SessionView, error) {
	sessions, err := s.sessions.ListCompletedForUser(ctx, userID, listLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to list sessions", err)
	}
	return s.views(ctx, sessions, userID)
}

// GetNotes returns the evaluation bundle to the host.
func (s *SessionService) GetNotes(ctx context.Context, id, userID string) (*model.NotesBundle, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Host != userID {
		return nil, apperr.New(apperr.CodeNotHost, "only the host can view notes")
	}
	return session.NotesBundle(), nil
}

// SaveCode stores a member's code for one of the session's problems.
// problemID may be the problem title or its key.
func (s *SessionService) SaveCode(ctx context.Context, id, userID, problemID, code string) error {
	session, key, err := s.memberProblem(ctx, id, userID, problemID)
	if err != nil {
		return err
	}
	if !session.IsActive() {
		return apperr.New(apperr.CodeSessionCompleted, "session has ended")
	}

	updated, err := s.sessions.SaveCode(ctx, id, userID, key, code)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageFailed, "failed to save code", err)
	}
	if updated == nil {
		return apperr.New(apperr.CodeSessionNotFound, "session not found")
	}
	return nil
}

// GetCode returns the saved code for a problem and whether any exists.
func (s *SessionService) GetCode(ctx context.Context, id, userID, problemID string) (string, bool, error) {
	session, key, err := s.memberProblem(ctx, id, userID, problemID)
	if err != nil {
		return "", false, err
	}
	code, ok := session.SavedCode[key]
	return code, ok, nil
}

func (s *SessionService) memberProblem(ctx context.Context, id, userID, problemID string) (*model.Session, string, error) {
	key := model.ProblemKey(problemID)
	if key == "" {
		return nil, "", apperr.New(apperr.CodeUnknownProblem, "problem id is required")
	}

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if session.RoleOf(userID) == model.RoleNone {
		return nil, "", apperr.New(apperr.CodeNotMember, "not a member of this session")
	}
	for _, p := range session.Problems {
		if model.ProblemKey(p.Title) == key {
			return session, key, nil
		}
	}
	return nil, "", apperr.New(apperr.CodeUnknownProblem, fmt.Sprintf("problem %q is not part of this session", problemID))
}

func (s *SessionService) load(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to load session", err)
	}
	if session == nil {
		return nil, apperr.New(apperr.CodeSessionNotFound, "session not found")
	}
	return session, nil
}

// hostMissError classifies a host-guarded update that matched nothing.
func (s *SessionService) hostMissError(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	return apperr.New(apperr.CodeNotHost, "only the host can modify this session")
}

func (s *SessionService) view(ctx context.Context, session *model.Session, viewerID string) (*model.SessionView, error) {
	views, err := s.views(ctx, []*model.Session{session}, viewerID)
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// views denormalizes host and participant with a single user lookup and
// hides what viewerID may not see.
func (s *SessionService) views(ctx context.Context, sessions []*model.Session, viewerID string) ([]*model.SessionView, error) {
	ids := make([]string, 0, len(sessions)*2)
	for _, session := range sessions {
		ids = append(ids, session.Host)
		if session.Participant != "" {
			ids = append(ids, session.Participant)
		}
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to load users", err)
	}

	views := make([]*model.SessionView, 0, len(sessions))
	for _, session := range sessions {
		view := &model.SessionView{Session: session.VisibleTo(viewerID), Host: users[session.Host].Summary()}
		if session.Participant != "" {
			view.Participant = users[session.Participant].Summary()
		}
		views = append(views, view)
	}
	return views, nil
}
