package auth

import (
	"context"

	"tindahan/internal/core/id"
)

// UserRepository is the user store.
type UserRepository interface {
	GetByID(ctx context.Context, userID id.ID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Exists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error

	LoadRoles(ctx context.Context, userID id.ID) ([]string, error)
	AssignRole(ctx context.Context, userID id.ID, role string) error
	RevokeRole(ctx context.Context, userID id.ID, role string) error
}

// TokenRepository stores hashed refresh tokens.
type TokenRepository interface {
	SaveRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenID id.ID, reason string) error
	RevokeAllUserTokens(ctx context.Context, userID id.ID, reason string) error
}
