package rest

import (
	"codepair/internal/service"
	"codepair/internal/transport/rest/handler"
	"codepair/internal/transport/rest/middleware"
	"codepair/internal/transport/ws"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/swaggo/swag"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	SessionService   *service.SessionService
	SwitchService    *service.SwitchService
	ExecutionService *service.ExecutionService
	WSHub            *ws.Hub
	CORSOrigins      string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	return newRouter(routes{
		auth:     c.AuthService,
		chat:     c.AuthService,
		sessions: c.SessionService,
		member:   c.SessionService,
		switcher: c.SwitchService,
		runner:   c.ExecutionService,
		hub:      c.WSHub,
		origins:  c.CORSOrigins,
	})
}

// routes is the interface-typed form of Container so tests can swap in stubs.
type routes struct {
	auth     middleware.Authenticator
	chat     handler.ChatTokenIssuer
	sessions handler.SessionManager
	member   ws.MembershipChecker
	switcher handler.ProblemSwitcher
	runner   handler.CodeRunner
	hub      *ws.Hub
	origins  string
}

func newRouter(c routes) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.chat)
	sessionHandler := handler.NewSessionHandler(c.sessions)
	switchHandler := handler.NewSwitchHandler(c.switcher)
	executeHandler := handler.NewExecuteHandler(c.runner)
	wsHandler := ws.NewHandler(c.hub, c.auth, c.member, c.origins)

	authMW := middleware.NewAuthMiddleware(c.auth)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.origins))
	r.Use(middleware.Recover)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"rooms":  c.hub.RoomCount(),
		})
	}).Methods("GET")

	r.HandleFunc("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			http.Error(w, "api docs not registered", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(doc))
	}).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws/rooms/{roomId}", wsHandler.RoomWS).Methods("GET")

	// Authenticated routes
	api := v1.NewRoute().Subrouter()
	api.Use(authMW.RequireUser)

	api.HandleFunc("/chat/token", authHandler.ChatToken).Methods("GET", "OPTIONS")
	api.HandleFunc("/execute", executeHandler.Execute).Methods("POST", "OPTIONS")

	api.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/active", sessionHandler.ListActive).Methods("GET", "OPTIONS")
	api.HandleFunc("/sessions/my-recent", sessionHandler.ListRecent).Methods("GET", "OPTIONS")
	api.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/sessions/{id}/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{id}/end", sessionHandler.End).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{id}/notes", sessionHandler.GetNotes).Methods("GET", "OPTIONS")
	api.HandleFunc("/sessions/{id}/notes", sessionHandler.SaveNotes).Methods("POST", "OPTIONS")
	api.HandleFunc("/sessions/{id}/decision", sessionHandler.SetDecision).Methods("PATCH", "OPTIONS")
	api.HandleFunc("/sessions/{id}/timings", sessionHandler.UpdateTimings).Methods("PATCH", "OPTIONS")
	api.HandleFunc("/sessions/{id}/code/{problemId}", sessionHandler.GetCode).Methods("GET", "OPTIONS")
	api.HandleFunc("/sessions/{id}/code/{problemId}", sessionHandler.SaveCode).Methods("PATCH", "OPTIONS")
	api.HandleFunc("/sessions/{id}/execute", executeHandler.ExecuteInSession).Methods("POST", "OPTIONS")

	// Problem switch routes (host only, enforced by the service)
	api.HandleFunc("/sessions/{id}/activeProblem", switchHandler.SetActiveProblem).Methods("PATCH", "OPTIONS")
	api.HandleFunc("/sessions/{id}/switch", switchHandler.Switch).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
