// Package appctx carries request-scoped values (user identity, request id)
// through context.Context without leaking HTTP types into the domain.
package appctx

import (
	"context"
)

// User is the authenticated caller, extracted from the JWT by middleware.
type User struct {
	UserID string
	Name   string
	Roles  []string
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type userKey struct{}

// WithUser stores the authenticated user in context.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// GetUser returns the authenticated user, or nil when unauthenticated.
func GetUser(ctx context.Context) *User {
	if u, ok := ctx.Value(userKey{}).(*User); ok {
		return u
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID stores the request id in context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request id, or empty string.
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}
