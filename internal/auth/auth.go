// Package auth resolves bearer credentials to user ids.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Authenticator verifies a token and returns the user it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// StaticTokens is a fixed token to user table, loaded from configuration.
type StaticTokens struct {
	tokens map[string]string
}

// ParseTokens reads "token:user" pairs separated by commas.
func ParseTokens(raw string) (*StaticTokens, error) {
	st := &StaticTokens{tokens: make(map[string]string)}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, ":")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid token entry %q: want token:user", pair)
		}
		if _, dup := st.tokens[token]; dup {
			return nil, fmt.Errorf("duplicate token for user %q", user)
		}
		st.tokens[token] = user
	}
	return st, nil
}

// Len returns the number of configured tokens.
func (s *StaticTokens) Len() int { return len(s.tokens) }

func (s *StaticTokens) Authenticate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingCredential
	}
	for t, user := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return user, nil
		}
	}
	return "", ErrInvalidCredential
}

type ctxKey struct{}

// WithUser stores the authenticated user id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the user id stored by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(ctxKey{}).(string)
	return u, ok && u != ""
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
