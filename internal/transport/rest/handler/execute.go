package handler

import (
	"codepair/internal/apperr"
	"codepair/internal/model"
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// CodeRunner executes code snippets.
type CodeRunner interface {
	Run(ctx context.Context, language, code string) (*model.RunOutput, error)
	RunInSession(ctx context.Context, sessionID, userID, language, code string) (*model.RunOutput, error)
}

// ExecuteHandler handles code execution endpoints
type ExecuteHandler struct {
	runner CodeRunner
}

// NewExecuteHandler creates a new execute handler
func NewExecuteHandler(runner CodeRunner) *ExecuteHandler {
	return &ExecuteHandler{runner: runner}
}

// ExecuteRequest is the body of the execute endpoints
type ExecuteRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (h *ExecuteHandler) decode(w http.ResponseWriter, r *http.Request) (*ExecuteRequest, bool) {
	var req ExecuteRequest
	if !decodeBody(w, r, &req) {
		return nil, false
	}
	if req.Language == "" {
		writeError(w, apperr.New(apperr.CodeInvalidRequest, "language is required"))
		return nil, false
	}
	return &req, true
}

// Execute handles POST /v1/execute
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	output, err := h.runner.Run(r.Context(), req.Language, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

// ExecuteInSession handles POST /v1/sessions/{id}/execute
func (h *ExecuteHandler) ExecuteInSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	output, err := h.runner.RunInSession(r.Context(), mux.Vars(r)["id"], user.ID, req.Language, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}
