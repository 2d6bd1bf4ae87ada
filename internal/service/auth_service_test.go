package service

import (
	"codepair/internal/apperr"
	"codepair/internal/config"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(comms Communicator) (*AuthService, *fakeUserRepo) {
	users := newFakeUserRepo()
	return NewAuthService(config.AuthConfig{JWTSecret: "test-secret", Issuer: "https://id.example"}, users, comms), users
}

func TestAuthenticateCreatesUserOnce(t *testing.T) {
	comms := &fakeComms{}
	auth, users := newTestAuth(comms)
	token, err := auth.IssueToken("ext-1", "Ada", "ada@example.com", time.Hour)
	require.NoError(t, err)

	user, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", user.ExternalID)
	assert.Equal(t, "Ada", user.Name)
	assert.Len(t, users.users, 1)

	again, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, []string{"ext-1"}, comms.upserted)
}

func TestAuthenticateRefreshesProfile(t *testing.T) {
	auth, _ := newTestAuth(&fakeComms{})
	first, _ := auth.IssueToken("ext-1", "Ada", "ada@example.com", time.Hour)
	renamed, _ := auth.IssueToken("ext-1", "Ada L.", "ada@example.com", time.Hour)

	u1, err := auth.Authenticate(context.Background(), first)
	require.NoError(t, err)
	u2, err := auth.Authenticate(context.Background(), renamed)
	require.NoError(t, err)

	assert.Equal(t, u1.ID, u2.ID)
	assert.Equal(t, "Ada L.", u2.Name)
}

func TestAuthenticateProviderFailureIsNotFatal(t *testing.T) {
	auth, _ := newTestAuth(&fakeComms{upsertErr: errBoom})
	token, _ := auth.IssueToken("ext-1", "Ada", "", time.Hour)

	_, err := auth.Authenticate(context.Background(), token)
	assert.NoError(t, err)
}

func TestValidateTokenRejects(t *testing.T) {
	auth, _ := newTestAuth(&fakeComms{})
	other := NewAuthService(config.AuthConfig{JWTSecret: "other"}, newFakeUserRepo(), &fakeComms{})

	expired, _ := auth.IssueToken("ext-1", "Ada", "", -time.Minute)
	wrongSecret, _ := other.IssueToken("ext-1", "Ada", "", time.Hour)
	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ext-1", "iss": "https://evil.example", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "https://id.example", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "ext-1", "iss": "https://id.example",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"expired":      expired,
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     unsigned,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ValidateToken(token)
			requireCode(t, err, apperr.CodeUnauthenticated)
		})
	}
}

func TestChatToken(t *testing.T) {
	auth, _ := newTestAuth(&fakeComms{})
	resp, err := auth.ChatToken(hostUser)
	require.NoError(t, err)
	assert.Equal(t, "token-ext-host", resp.Token)
	assert.Equal(t, "ext-host", resp.UserID)

	disabled, _ := newTestAuth(disabledCommunicator{})
	_, err = disabled.ChatToken(hostUser)
	requireCode(t, err, apperr.CodeProviderFailed)
}
