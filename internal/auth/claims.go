package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for the dashboard API.
// AccountID scopes every voice profile and call the caller may touch.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	AccountID string    `json:"account_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
