package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"alpacastream/internal/users"
)

const tokenCookie = "token"

// TokenFromRequest reads a bearer token from the Authorization header, then
// falls back to the "token" cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
	}
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", ErrMissingToken
}

// UserLookup finds a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

// Resolver turns a request into the user it is authorized as.
type Resolver struct {
	issuer *Issuer
	users  UserLookup
}

func NewResolver(issuer *Issuer, lookup UserLookup) *Resolver {
	return &Resolver{issuer: issuer, users: lookup}
}

func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*users.User, error) {
	token, err := TokenFromRequest(req)
	if err != nil {
		return nil, err
	}
	claims, err := r.issuer.Verify(token)
	if err != nil {
		return nil, err
	}
	return r.users.GetByID(ctx, claims.UserID)
}

// Reason maps a Resolve error to the text sent to the client.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "Authentication required"
	case errors.Is(err, ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, users.ErrNotFound):
		return "User not found"
	default:
		return "Connection failed"
	}
}
