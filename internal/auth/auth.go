// Package auth provides optional bearer-token protection for the HTTP API.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Middleware verifies HS256 bearer tokens when a secret is configured. With
// an empty secret every request passes, so a bare local deployment needs no
// token plumbing.
type Middleware struct {
	secret []byte
}

func NewMiddleware(secret string) *Middleware {
	m := &Middleware{}
	if secret != "" {
		m.secret = []byte(secret)
	}
	return m
}

func (m *Middleware) Enabled() bool { return m.secret != nil }

// Require wraps a handler that mutates mount state.
func (m *Middleware) Require(next http.HandlerFunc) http.HandlerFunc {
	if m.secret == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if err := m.verify(token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", fmt.Errorf("authentication required")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("malformed Authorization header")
	}
	return parts[1], nil
}

func (m *Middleware) verify(token string) error {
	_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err
}
