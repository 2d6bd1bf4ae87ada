package handler

import (
	"codepair/internal/apperr"
	"codepair/internal/model"
	"codepair/internal/service"
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// ProblemSwitcher moves a session between its problems.
type ProblemSwitcher interface {
	Switch(ctx context.Context, id, userID string, req service.SwitchRequest) (*service.SwitchResult, error)
	SetActiveProblem(ctx context.Context, id, userID, title string) (*model.Session, error)
}

// SwitchHandler handles problem switch endpoints
type SwitchHandler struct {
	switcher ProblemSwitcher
}

// NewSwitchHandler creates a new switch handler
func NewSwitchHandler(switcher ProblemSwitcher) *SwitchHandler {
	return &SwitchHandler{switcher: switcher}
}

// Switch handles POST /v1/sessions/{id}/switch
func (h *SwitchHandler) Switch(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req service.SwitchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, apperr.New(apperr.CodeInvalidRequest, "title is required"))
		return
	}

	result, err := h.switcher.Switch(r.Context(), mux.Vars(r)["id"], user.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ActiveProblemRequest is the body of PATCH /v1/sessions/{id}/activeProblem
type ActiveProblemRequest struct {
	Title string `json:"title"`
}

// SetActiveProblem handles PATCH /v1/sessions/{id}/activeProblem
func (h *SwitchHandler) SetActiveProblem(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ActiveProblemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, apperr.New(apperr.CodeInvalidRequest, "title is required"))
		return
	}

	session, err := h.switcher.SetActiveProblem(r.Context(), mux.Vars(r)["id"], user.ID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}
