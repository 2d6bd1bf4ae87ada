package app

import (
	"codepair/internal/cache"
	"codepair/internal/collab"
	"codepair/internal/config"
	"codepair/internal/repository"
	"codepair/internal/service"
	"codepair/internal/transport/rest"
	"codepair/internal/transport/ws"
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App wires repositories, services and the realtime hub together.
type App struct {
	Config *config.Config

	SessionRepo repository.SessionRepo
	UserRepo    repository.UserRepo
	ProblemRepo repository.ProblemRepo

	Auth      *service.AuthService
	Sessions  *service.SessionService
	Switch    *service.SwitchService
	Execution *service.ExecutionService
	Hub       *ws.Hub
}

// New builds the application. rdb may be nil, in which case problem switches
// are serialized within this process only.
func New(cfg *config.Config, db *mongo.Database, rdb *redis.Client) *App {
	sessionRepo := repository.NewSessionRepo(db)
	userRepo := repository.NewUserRepo(db)
	problemRepo := repository.NewProblemRepo(db)

	var lock cache.SwitchLock
	if rdb != nil {
		lock = cache.NewSwitchLock(rdb, cfg.SwitchLockTTL)
	} else {
		lock = cache.NewLocalSwitchLock(cfg.SwitchLockTTL)
	}

	comms := service.NewCommunicator(cfg.Stream)

	hub := ws.NewHub(collab.NewStore())

	authSvc := service.NewAuthService(cfg.Auth, userRepo, comms)
	sessionSvc := service.NewSessionService(sessionRepo, userRepo, comms)
	switchSvc := service.NewSwitchService(sessionRepo, problemRepo, lock)
	execSvc := service.NewExecutionService(service.NewPistonExecutor(cfg.Exec), sessionRepo)

	// Inject broadcaster (hub implements service.Broadcaster)
	sessionSvc.SetBroadcaster(hub)
	switchSvc.SetBroadcaster(hub)
	execSvc.SetBroadcaster(hub)

	return &App{
		Config:      cfg,
		SessionRepo: sessionRepo,
		UserRepo:    userRepo,
		ProblemRepo: problemRepo,
		Auth:        authSvc,
		Sessions:    sessionSvc,
		Switch:      switchSvc,
		Execution:   execSvc,
		Hub:         hub,
	}
}

// EnsureIndexes creates the collection indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if err := repository.EnsureSessionIndexes(ctx, db); err != nil {
		return fmt.Errorf("session indexes: %w", err)
	}
	if err := repository.EnsureUserIndexes(ctx, db); err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	return nil
}

// Router returns the HTTP handler serving the API.
func (a *App) Router() http.Handler {
	return rest.NewRouter(&rest.Container{
		AuthService:      a.Auth,
		SessionService:   a.Sessions,
		SwitchService:    a.Switch,
		ExecutionService: a.Execution,
		WSHub:            a.Hub,
		CORSOrigins:      a.Config.CORSOrigins,
	})
}
