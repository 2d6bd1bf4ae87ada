package service

import (
	"bytes"
	"codepair/internal/apperr"
	"codepair/internal/config"
	"codepair/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"
)

// Communicator manages the video call and chat channel backing each session
// room.
type Communicator interface {
	CreateRoom(ctx context.Context, room RoomSpec) error
	AddMember(ctx context.Context, roomID, externalUserID string) error
	DeleteRoom(ctx context.Context, roomID string) error
	UpsertUser(ctx context.Context, user *model.User) error
	UserToken(externalUserID string) (string, error)
}

// RoomSpec describes a room to create with the provider.
type RoomSpec struct {
	RoomID    string
	CreatorID string // external user id
	Name      string
	Custom    map[string]string
}

// NewCommunicator returns the Stream client, or a logging no-op when the
// provider is not configured.
func NewCommunicator(cfg config.StreamConfig) Communicator {
	if !cfg.Enabled() {
		log.Println("Warning: STREAM_API_KEY/STREAM_API_SECRET not set, video and chat disabled")
		return disabledCommunicator{}
	}
	return NewStreamClient(cfg)
}

// StreamClient wraps the Stream video and chat REST APIs
type StreamClient struct {
	apiKey     string
	secret     []byte
	videoURL   string
	chatURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewStreamClient creates a new Stream API client
func NewStreamClient(cfg config.StreamConfig) *StreamClient {
	return &StreamClient{
		apiKey:   cfg.APIKey,
		secret:   []byte(cfg.APISecret),
		videoURL: cfg.VideoURL,
		chatURL:  cfg.ChatURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		backoff:    500 * time.Millisecond,
	}
}

// serverToken signs the server-side credential Stream expects on every call.
func (c *StreamClient) serverToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"server": true})
	return token.SignedString(c.secret)
}

// UserToken signs a client token for externalUserID.
func (c *StreamClient) UserToken(externalUserID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": externalUserID,
		"iat":     time.Now().Unix(),
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign user token: %w", err)
	}
	return signed, nil
}

// doRequest performs an HTTP request with retry on rate limits, server errors
// and transport failures.
func (c *StreamClient) doRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	token, err := c.serverToken()
	if err != nil {
		return nil, fmt.Errorf("failed to sign server token: %w", err)
	}

	log.Printf("[Stream] %s %s", method, u.Path)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			log.Printf("[Stream] Retry attempt %d/%d for %s %s in %v", attempt, c.maxRetries-1, method, u.Path, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Stream-Auth-Type", "jwt")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[Stream] ERROR: HTTP request failed (attempt %d): %v", attempt+1, err)
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			log.Printf("[Stream] Provider returned %d (attempt %d)", resp.StatusCode, attempt+1)
			lastErr = fmt.Errorf("stream API error %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode >= 400 {
			log.Printf("[Stream] ERROR: API returned %d: %s", resp.StatusCode, string(respBody))
			return nil, fmt.Errorf("stream API error %d: %s", resp.StatusCode, string(respBody))
		}

		return respBody, nil
	}

	log.Printf("[Stream] ERROR: Max retries (%d) exceeded for %s %s: %v", c.maxRetries, method, u.Path, lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *StreamClient) callURL(roomID string) string {
	return fmt.Sprintf("%s/call/default/%s", c.videoURL, url.PathEscape(roomID))
}

func (c *StreamClient) channelURL(roomID string) string {
	return fmt.Sprintf("%s/channels/messaging/%s", c.chatURL, url.PathEscape(roomID))
}

// CreateRoom creates the video call and chat channel for a room. If the
// channel cannot be created the call is removed again.
func (c *StreamClient) CreateRoom(ctx context.Context, room RoomSpec) error {
	call := map[string]interface{}{
		"data": map[string]interface{}{
			"created_by_id": room.CreatorID,
			"custom":        room.Custom,
		},
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.callURL(room.RoomID), call); err != nil {
		return apperr.Wrap(apperr.CodeProviderFailed, "failed to create video call", err)
	}

	channel := map[string]interface{}{
		"data": map[string]interface{}{
			"name":          room.Name,
			"created_by_id": room.CreatorID,
			"members":       []string{room.CreatorID},
		},
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.channelURL(room.RoomID)+"/query", channel); err != nil {
		if _, derr := c.doRequest(ctx, http.MethodPost, c.callURL(room.RoomID)+"/delete", map[string]bool{"hard": true}); derr != nil {
			log.Printf("[Stream] WARNING: failed to roll back call %s: %v", room.RoomID, derr)
		}
		return apperr.Wrap(apperr.CodeProviderFailed, "failed to create chat channel", err)
	}

	log.Printf("[Stream] Created room %s", room.RoomID)
	return nil
}

// AddMember adds a user to the room's chat channel.
func (c *StreamClient) AddMember(ctx context.Context, roomID, externalUserID string) error {
	payload := map[string]interface{}{"add_members": []string{externalUserID}}
	if _, err := c.doRequest(ctx, http.MethodPost, c.channelURL(roomID), payload); err != nil {
		return apperr.Wrap(apperr.CodeProviderFailed, "failed to add chat member", err)
	}
	return nil
}

// DeleteRoom removes the call and the channel in parallel. Both deletions
// are attempted even if one fails.
func (c *StreamClient) DeleteRoom(ctx context.Context, roomID string) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := c.doRequest(ctx, http.MethodPost, c.callURL(roomID)+"/delete", map[string]bool{"hard": true})
		return err
	})
	g.Go(func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, c.channelURL(roomID)+"?hard_delete=true", nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return apperr.Wrap(apperr.CodeProviderFailed, "failed to delete room", err)
	}

	log.Printf("[Stream] Deleted room %s", roomID)
	return nil
}

// UpsertUser registers or refreshes a user's display profile.
func (c *StreamClient) UpsertUser(ctx context.Context, user *model.User) error {
	payload := map[string]interface{}{
		"users": map[string]interface{}{
			user.ExternalID: map[string]string{
				"id":    user.ExternalID,
				"name":  user.Name,
				"image": user.ProfileImage,
			},
		},
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.chatURL+"/users", payload); err != nil {
		return apperr.Wrap(apperr.CodeProviderFailed, "failed to upsert user", err)
	}
	return nil
}

// disabledCommunicator stands in when no provider credentials are set.
type disabledCommunicator struct{}

func (disabledCommunicator) CreateRoom(_ context.Context, room RoomSpec) error {
	log.Printf("[Stream] disabled: skipping room %s", room.RoomID)
	return nil
}

func (disabledCommunicator) AddMember(context.Context, string, string) error { return nil }

func (disabledCommunicator) DeleteRoom(context.Context, string) error { return nil }

func (disabledCommunicator) UpsertUser(context.Context, *model.User) error { return nil }

func (disabledCommunicator) UserToken(string) (string, error) {
	return "", apperr.New(apperr.CodeProviderFailed, "video and chat are not configured")
}
