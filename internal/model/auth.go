package model

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims are the claims carried by identity-provider session tokens.
// The subject is the provider's user id.
type IdentityClaims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// ChatTokenResponse is returned to clients initializing the video/chat SDK.
type ChatTokenResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserImage string `json:"userImage"`
}
