package api

import (
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the per-session security token attached to requests.
// A source may legitimately have no token (degraded mode).
type TokenSource interface {
	Token() (string, bool)
}

// StaticTokenSource returns a fixed token, or nothing when the token is empty.
type StaticTokenSource struct {
	Value string
}

func (s StaticTokenSource) Token() (string, bool) {
	if s.Value == "" {
		return "", false
	}
	return s.Value, true
}

// JWTTokenSource wraps a session JWT. The token is parsed without signature
// verification purely to warn when it has already expired; the server remains
// the authority, so an expired token is still sent.
type JWTTokenSource struct {
	Value string
}

func (s JWTTokenSource) Token() (string, bool) {
	if s.Value == "" {
		return "", false
	}
	token, _, err := jwt.NewParser().ParseUnverified(s.Value, jwt.MapClaims{})
	if err != nil {
		log.Printf("Warning: session token is not a valid JWT: %v", err)
		return s.Value, true
	}
	exp, err := token.Claims.GetExpirationTime()
	if err == nil && exp != nil && exp.Time.Before(time.Now()) {
		log.Printf("Warning: session token expired at %s, sending anyway", exp.Time)
	}
	return s.Value, true
}
