package service

import (
	"bytes"
	"codepair/internal/apperr"
	"codepair/internal/config"
	"codepair/internal/model"
	"codepair/internal/repository"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Executor runs a code snippet in a sandbox.
type Executor interface {
	Execute(ctx context.Context, language, code string) (*model.RunOutput, error)
}

type runtimeSpec struct {
	version   string
	extension string
}

var runtimes = map[string]runtimeSpec{
	model.LangJavaScript: {version: "18.15.0", extension: "js"},
	model.LangPython:     {version: "3.10.0", extension: "py"},
	model.LangJava:       {version: "15.0.2", extension: "java"},
}

// SupportedLanguage reports whether code in language can be executed.
func SupportedLanguage(language string) bool {
	_, ok := runtimes[language]
	return ok
}

// PistonExecutor executes code through a Piston API.
type PistonExecutor struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewPistonExecutor creates a new Piston executor
func NewPistonExecutor(cfg config.ExecConfig) *PistonExecutor {
	return &PistonExecutor{
		baseURL: cfg.PistonURL,
		timeout: cfg.Timeout,
		client:  &http.Client{},
	}
}

type pistonFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
}

type pistonStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Output string `json:"output"`
	Code   *int   `json:"code"`
	Signal string `json:"signal"`
}

type pistonResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Compile  *pistonStage `json:"compile,omitempty"`
	Run      pistonStage  `json:"run"`
	Message  string       `json:"message,omitempty"`
}

// Execute runs code and reports its output. Failures of the snippet itself
// come back as an unsuccessful RunOutput; only sandbox failures are errors.
func (e *PistonExecutor) Execute(ctx context.Context, language, code string) (*model.RunOutput, error) {
	rt, ok := runtimes[language]
	if !ok {
		return nil, apperr.New(apperr.CodeUnsupportedLang, fmt.Sprintf("unsupported language: %s", language))
	}

	body, err := json.Marshal(pistonRequest{
		Language: language,
		Version:  rt.version,
		Files:    []pistonFile{{Name: "main." + rt.extension, Content: code}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Wrap(apperr.CodeExecutionTimeout, "Code execution timed out. Please try again.", err)
		}
		return nil, apperr.Wrap(apperr.CodeExecutionFailed, "failed to reach execution service", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Wrap(apperr.CodeExecutionTimeout, "Code execution timed out. Please try again.", err)
		}
		return nil, apperr.Wrap(apperr.CodeExecutionFailed, "failed to read execution result", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("[Executor] Piston returned %d: %s", resp.StatusCode, string(respBody))
		return nil, apperr.New(apperr.CodeExecutionFailed, fmt.Sprintf("execution service error: status %d", resp.StatusCode))
	}

	var result pistonResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apperr.Wrap(apperr.CodeExecutionFailed, "invalid execution result", err)
	}
	return toRunOutput(&result), nil
}

func toRunOutput(r *pistonResponse) *model.RunOutput {
	if r.Compile != nil && r.Compile.Code != nil && *r.Compile.Code != 0 {
		msg := r.Compile.Stderr
		if msg == "" {
			msg = r.Compile.Output
		}
		return &model.RunOutput{Success: false, Output: r.Compile.Stdout, Error: msg}
	}

	if r.Run.Stderr != "" {
		return &model.RunOutput{Success: false, Output: r.Run.Stdout, Error: r.Run.Stderr}
	}
	if r.Run.Signal != "" {
		return &model.RunOutput{Success: false, Output: r.Run.Stdout, Error: "Process terminated by " + r.Run.Signal}
	}

	output := r.Run.Stdout
	if output == "" {
		output = "No output"
	}
	return &model.RunOutput{Success: true, Output: output}
}

// ExecutionService runs code for callers, optionally inside a session room
// so the other party sees the result.
type ExecutionService struct {
	executor    Executor
	sessions    repository.SessionRepo
	broadcaster Broadcaster
}

// NewExecutionService creates a new execution service
func NewExecutionService(executor Executor, sessions repository.SessionRepo) *ExecutionService {
	return &ExecutionService{
		executor:    executor,
		sessions:    sessions,
		broadcaster: nopBroadcaster{},
	}
}

// SetBroadcaster sets the room broadcaster (called after hub is created)
func (s *ExecutionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Run executes code outside any session.
func (s *ExecutionService) Run(ctx context.Context, language, code string) (*model.RunOutput, error) {
	return s.executor.Execute(ctx, language, code)
}

// RunInSession executes code for a session member and shares the result
// with the rest of the room.
func (s *ExecutionService) RunInSession(ctx context.Context, sessionID, userID, language, code string) (*model.RunOutput, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to load session", err)
	}
	if session == nil {
		return nil, apperr.New(apperr.CodeSessionNotFound, "session not found")
	}
	if session.RoleOf(userID) == model.RoleNone {
		return nil, apperr.New(apperr.CodeNotMember, "not a member of this session")
	}
	if !session.IsActive() {
		return nil, apperr.New(apperr.CodeSessionCompleted, "session has ended")
	}

	output, err := s.executor.Execute(ctx, language, code)
	if err != nil {
		return nil, err
	}

	s.broadcaster.PublishOutput(session.RoomID, userID, output)
	return output, nil
}
