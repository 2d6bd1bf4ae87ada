package handler

import (
	"codepair/internal/apperr"
	"codepair/internal/model"
	"codepair/internal/transport/rest/middleware"
	"encoding/json"
	"log"
	"net/http"
)

// ChatTokenIssuer signs client tokens for the video/chat SDK.
type ChatTokenIssuer interface {
	ChatToken(user *model.User) (*model.ChatTokenResponse, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	issuer ChatTokenIssuer
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(issuer ChatTokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// ChatToken handles GET /v1/chat/token
func (h *AuthHandler) ChatToken(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	resp, err := h.issuer.ChatToken(user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Helper functions

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError renders err with the status of its kind. Internal causes are
// logged and never sent to the client.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] ERROR: %v", err)
	}
	writeJSON(w, status, ErrorResponse{
		Error: apperr.PublicMessage(err),
		Code:  string(apperr.CodeOf(err)),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInvalidRequest, "invalid request body", err))
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperr.New(apperr.CodeUnauthenticated, "unauthorized"))
		return nil, false
	}
	return user, true
}
