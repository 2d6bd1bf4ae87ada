package handler

import (
	"bytes"
	"codepair/internal/apperr"
	"codepair/internal/model"
	"codepair/internal/service"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// SessionManager is the session lifecycle API the handlers call.
type SessionManager interface {
	Create(ctx context.Context, host *model.User, req service.CreateSessionRequest) (*model.SessionView, error)
	Join(ctx context.Context, id string, user *model.User) (*model.SessionView, error)
	End(ctx context.Context, id, userID string) (*model.SessionView, error)
	GetByID(ctx context.Context, id, viewerID string) (*model.SessionView, error)
	ListActive(ctx context.Context, viewerID string) ([]*model.SessionView, error)
	ListRecent(ctx context.Context, userID string) ([]*model.SessionView, error)
	GetNotes(ctx context.Context, id, userID string) (*model.NotesBundle, error)
	UpdateEvaluation(ctx context.Context, id, userID string, update model.SessionUpdate) (*model.NotesBundle, error)
	SetDecision(ctx context.Context, id, userID string, decision *string) (*model.Session, error)
	UpdateTimings(ctx context.Context, id, userID string, timings []model.Timing) (*model.Session, error)
	SaveCode(ctx context.Context, id, userID, problemID, code string) error
	GetCode(ctx context.Context, id, userID, problemID string) (string, bool, error)
}

// SessionHandler handles session endpoints
type SessionHandler struct {
	sessions SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req service.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.sessions.Create(r.Context(), user, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

// ListActive handles GET /v1/sessions/active
func (h *SessionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListActive(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// ListRecent handles GET /v1/sessions/my-recent
func (h *SessionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListRecent(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.GetByID(r.Context(), mux.Vars(r)["id"], user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// Join handles POST /v1/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.Join(r.Context(), mux.Vars(r)["id"], user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// End handles POST /v1/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.End(r.Context(), mux.Vars(r)["id"], user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
		"message": "Session ended successfully",
	})
}

// GetNotes handles GET /v1/sessions/{id}/notes
func (h *SessionHandler) GetNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	notes, err := h.sessions.GetNotes(r.Context(), mux.Vars(r)["id"], user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// SaveNotes handles POST /v1/sessions/{id}/notes
func (h *SessionHandler) SaveNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var update model.SessionUpdate
	if !decodeBody(w, r, &update) {
		return
	}

	notes, err := h.sessions.UpdateEvaluation(r.Context(), mux.Vars(r)["id"], user.ID, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// DecisionRequest is the body of PATCH /v1/sessions/{id}/decision. A JSON
// null clears the decision; a missing field is rejected.
type DecisionRequest struct {
	Decision json.RawMessage `json:"decision"`
}

// SetDecision handles PATCH /v1/sessions/{id}/decision
func (h *SessionHandler) SetDecision(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var decision *string
	switch {
	case len(req.Decision) == 0:
		writeError(w, apperr.New(apperr.CodeInvalidDecision, "decision is required"))
		return
	case bytes.Equal(req.Decision, []byte("null")):
	default:
		var d string
		if err := json.Unmarshal(req.Decision, &d); err != nil {
			writeError(w, apperr.New(apperr.CodeInvalidDecision, "decision must be a string or null"))
			return
		}
		decision = &d
	}

	session, err := h.sessions.SetDecision(r.Context(), mux.Vars(r)["id"], user.ID, decision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decision": session.Decision})
}

// TimingsRequest is the body of PATCH /v1/sessions/{id}/timings
type TimingsRequest struct {
	Timings []model.Timing `json:"timings"`
}

// UpdateTimings handles PATCH /v1/sessions/{id}/timings
func (h *SessionHandler) UpdateTimings(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req TimingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Timings == nil {
		writeError(w, apperr.New(apperr.CodeInvalidTimings, "timings is required"))
		return
	}

	session, err := h.sessions.UpdateTimings(r.Context(), mux.Vars(r)["id"], user.ID, req.Timings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timings":   session.Timings,
		"timeTaken": session.TimeTaken,
	})
}

// SaveCodeRequest is the body of PATCH /v1/sessions/{id}/code/{problemId}
type SaveCodeRequest struct {
	Code *string `json:"code"`
}

// SaveCode handles PATCH /v1/sessions/{id}/code/{problemId}
func (h *SessionHandler) SaveCode(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SaveCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == nil {
		writeError(w, apperr.New(apperr.CodeInvalidRequest, "code is required"))
		return
	}

	vars := mux.Vars(r)
	if err := h.sessions.SaveCode(r.Context(), vars["id"], user.ID, vars["problemId"], *req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"problemId": model.ProblemKey(vars["problemId"]),
		"saved":     true,
	})
}

// GetCode handles GET /v1/sessions/{id}/code/{problemId}
func (h *SessionHandler) GetCode(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	code, found, err := h.sessions.GetCode(r.Context(), vars["id"], user.ID, vars["problemId"])
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"problemId": model.ProblemKey(vars["problemId"]),
		"code":      nil,
	}
	if found {
		resp["code"] = code
	}
	writeJSON(w, http.StatusOK, resp)
}
