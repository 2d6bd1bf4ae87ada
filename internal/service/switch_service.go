package service

import (
	"codepair/internal/apperr"
	"codepair/internal/cache"
	"codepair/internal/model"
	"codepair/internal/repository"
	"context"
	"fmt"
	"log"
	"time"
)

// SwitchRequest asks to move a session to another of its problems. Code is
// the host's current editor content for the outgoing problem. When Code or
// Language is omitted the room's live editor state is used; with no live
// state, saved code is kept and the language defaults to JavaScript.
type SwitchRequest struct {
	Title    string  `json:"title"`
	Code     *string `json:"code"`
	Language string  `json:"language"`
}

// SwitchResult is what the host's editor should show after a switch.
type SwitchResult struct {
	Session  *model.Session `json:"session"`
	Code     string         `json:"code"`
	Language string         `json:"language"`
	Restored bool           `json:"restored"` // code came from savedCode, not the catalog
}

// SwitchService moves a live session between its problems, keeping the
// saved code, timing log and both editors consistent.
type SwitchService struct {
	sessions    repository.SessionRepo
	problems    repository.ProblemRepo
	lock        cache.SwitchLock
	broadcaster Broadcaster
	now         func() time.Time
}

// NewSwitchService creates a new problem switch service
func NewSwitchService(sessions repository.SessionRepo, problems repository.ProblemRepo, lock cache.SwitchLock) *SwitchService {
	return &SwitchService{
		sessions:    sessions,
		problems:    problems,
		lock:        lock,
		broadcaster: nopBroadcaster{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetBroadcaster sets the room broadcaster (called after hub is created)
func (s *SwitchService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Switch performs a full problem switch for the host:
//  1. checkpoint the outgoing problem's code and close its timing
//  2. clear both editors
//  3. activate the target problem and open its timing
//  4. resolve the target's code from savedCode, else the catalog
//  5. push the new problem and code to the other party
//
// Switches on one session are serialized; a concurrent attempt fails with
// SWITCH_IN_PROGRESS instead of interleaving.
func (s *SwitchService) Switch(ctx context.Context, id, userID string, req SwitchRequest) (*SwitchResult, error) {
	if _, _, err := s.precheck(ctx, id, userID, req.Title); err != nil {
		return nil, err
	}
	if req.Language != "" && !SupportedLanguage(req.Language) {
		return nil, apperr.New(apperr.CodeUnsupportedLang, fmt.Sprintf("unsupported language: %s", req.Language))
	}

	release, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock; a switch that finished meanwhile may have
	// already moved the session.
	session, target, err := s.precheck(ctx, id, userID, req.Title)
	if err != nil {
		return nil, err
	}

	language, outgoing := s.editorState(session.RoomID, req)

	from := session.Problem
	saved, err := s.sessions.Checkpoint(ctx, id, userID, model.Checkpoint{Title: from, Code: outgoing, At: s.now()})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to save current problem", err)
	}
	if saved == nil {
		return nil, s.staleError(ctx, id)
	}

	s.broadcaster.ResetEditor(session.RoomID)

	updated, err := s.sessions.ActivateProblem(ctx, id, userID, from, target, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to switch problem", err)
	}
	if updated == nil {
		return nil, s.staleError(ctx, id)
	}

	code, restored := updated.CodeFor(target.Title)
	if !restored {
		code = s.starterCode(ctx, target.Title, language)
	}

	s.broadcaster.PublishProblem(updated.RoomID, userID, model.ProblemChanged{Title: target.Title, Difficulty: target.Difficulty})
	s.broadcaster.PublishCode(updated.RoomID, userID, model.CodeChange{Code: code, Language: language})

	log.Printf("[Switch] Session %s: %q -> %q (restored=%v)", id, from, target.Title, restored)
	return &SwitchResult{Session: updated, Code: code, Language: language, Restored: restored}, nil
}

// SetActiveProblem changes the active problem and its timing without
// touching code or editors.
func (s *SwitchService) SetActiveProblem(ctx context.Context, id, userID, title string) (*model.Session, error) {
	if _, _, err := s.precheck(ctx, id, userID, title); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, target, err := s.precheck(ctx, id, userID, title)
	if err != nil {
		return nil, err
	}

	updated, err := s.sessions.ActivateProblem(ctx, id, userID, session.Problem, target, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to switch problem", err)
	}
	if updated == nil {
		return nil, s.staleError(ctx, id)
	}

	log.Printf("[Switch] Session %s: active problem %q -> %q", id, session.Problem, target.Title)
	return updated, nil
}

// editorState fills the language and outgoing code the request left out
// from the room's cached editor.
func (s *SwitchService) editorState(roomID string, req SwitchRequest) (string, *string) {
	language, code := req.Language, req.Code
	live, ok := s.broadcaster.Snapshot(roomID)
	if language == "" {
		language = model.LangJavaScript
		if ok && SupportedLanguage(live.Language) {
			language = live.Language
		}
	}
	if code == nil && ok && live.Code != "" {
		code = &live.Code
	}
	return language, code
}

func (s *SwitchService) precheck(ctx context.Context, id, userID, title string) (*model.Session, model.Problem, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, model.Problem{}, apperr.Wrap(apperr.CodeStorageFailed, "failed to load session", err)
	}
	if session == nil {
		return nil, model.Problem{}, apperr.New(apperr.CodeSessionNotFound, "session not found")
	}
	if session.Host != userID {
		return nil, model.Problem{}, apperr.New(apperr.CodeNotHost, "only the host can switch problems")
	}
	if !session.IsActive() {
		return nil, model.Problem{}, apperr.New(apperr.CodeSessionCompleted, "session has ended")
	}

	target, ok := session.FindProblem(title)
	if !ok {
		return nil, model.Problem{}, apperr.New(apperr.CodeUnknownProblem, fmt.Sprintf("problem %q is not part of this session", title))
	}
	if target.Title == session.Problem {
		return nil, model.Problem{}, apperr.New(apperr.CodeProblemAlreadyActive, fmt.Sprintf("%q is already the active problem", title))
	}
	return session, target, nil
}

func (s *SwitchService) acquire(ctx context.Context, id string) (func(), error) {
	release, ok, err := s.lock.Acquire(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to acquire switch lock", err)
	}
	if !ok {
		return nil, apperr.New(apperr.CodeSwitchInProgress, "another problem switch is in progress")
	}
	return release, nil
}

// staleError classifies a guarded write that no longer matched.
func (s *SwitchService) staleError(ctx context.Context, id string) error {
	current, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageFailed, "failed to load session", err)
	}
	if current == nil {
		return apperr.New(apperr.CodeSessionNotFound, "session not found")
	}
	if !current.IsActive() {
		return apperr.New(apperr.CodeSessionCompleted, "session has ended")
	}
	return apperr.New(apperr.CodeStaleSession, "session changed during the switch, reload and retry")
}

func (s *SwitchService) starterCode(ctx context.Context, title, language string) string {
	problem, err := s.problems.GetByTitle(ctx, title)
	if err != nil {
		log.Printf("[Switch] WARNING: catalog lookup for %q failed: %v", title, err)
		return ""
	}
	return problem.Starter(language)
}
