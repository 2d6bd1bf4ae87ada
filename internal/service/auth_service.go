package service

import (
	"codepair/internal/apperr"
	"codepair/internal/config"
	"codepair/internal/model"
	"codepair/internal/repository"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies identity-provider tokens and resolves them to
// internal user records.
type AuthService struct {
	jwtSecret []byte
	issuer    string
	users     repository.UserRepo
	comms     Communicator
}

// NewAuthService creates a new auth service
func NewAuthService(cfg config.AuthConfig, users repository.UserRepo, comms Communicator) *AuthService {
	return &AuthService{
		jwtSecret: []byte(cfg.JWTSecret),
		issuer:    cfg.Issuer,
		users:     users,
		comms:     comms,
	}
}

// ValidateToken checks the signature, expiry and issuer of an identity token.
func (s *AuthService) ValidateToken(tokenString string) (*model.IdentityClaims, error) {
	if tokenString == "" {
		return nil, apperr.New(apperr.CodeUnauthenticated, "missing token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &model.IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnauthenticated, "invalid or expired token", err)
	}

	claims, ok := token.Claims.(*model.IdentityClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, apperr.New(apperr.CodeUnauthenticated, "invalid or expired token")
	}
	return claims, nil
}

// Authenticate validates tokenString and returns the caller's user record,
// creating it on first sight. New users are also registered with the
// communications provider; a failure there is logged and not fatal.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to load user", err)
	}
	if existing != nil && !profileChanged(existing, claims) {
		return existing, nil
	}

	user, created, err := s.users.Upsert(ctx, &model.User{
		ExternalID:   claims.Subject,
		Name:         claims.Name,
		Email:        claims.Email,
		ProfileImage: claims.Picture,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, "failed to save user", err)
	}

	if created {
		log.Printf("[Auth] Created user %s for %s", user.ID, user.ExternalID)
		if err := s.comms.UpsertUser(ctx, user); err != nil {
			log.Printf("[Auth] WARNING: provider user sync failed for %s: %v", user.ExternalID, err)
		}
	}
	return user, nil
}

func profileChanged(u *model.User, c *model.IdentityClaims) bool {
	return u.Name != c.Name || u.Email != c.Email || u.ProfileImage != c.Picture
}

// IssueToken signs an identity token. Production tokens come from the
// identity provider; this is used for local development and tooling.
func (s *AuthService) IssueToken(externalID, name, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &model.IdentityClaims{
		Name:  name,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   externalID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ChatToken returns a provider token for the caller's video/chat client.
func (s *AuthService) ChatToken(user *model.User) (*model.ChatTokenResponse, error) {
	token, err := s.comms.UserToken(user.ExternalID)
	if err != nil {
		return nil, err
	}
	return &model.ChatTokenResponse{
		Token:     token,
		UserID:    user.ExternalID,
		UserName:  user.Name,
		UserImage: user.ProfileImage,
	}, nil
}
