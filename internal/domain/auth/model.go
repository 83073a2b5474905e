// Package auth provides authentication and role-based authorization.
package auth

import (
	"context"
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
)

// Role codes. Remit posting and clearance decisions require manager or
// admin; riders only read their own runs and submit check-in data.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
	RoleRider   = "rider"
)

// User is a staff account.
type User struct {
	ID           id.ID  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	DisplayName  string `db:"display_name" json:"displayName"`
	IsActive     bool   `db:"is_active" json:"isActive"`

	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time `db:"locked_until" json:"-"`
	LastLoginAt         *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Roles []string `db:"-" json:"roles,omitempty"`
}

// NewUser creates an active user.
func NewUser(username, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           id.New(),
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate implements entity.Validatable.
func (u *User) Validate(ctx context.Context) error {
	if u.Username == "" {
		return apperror.NewValidation("username is required").WithDetail("field", "username")
	}
	return nil
}

// IsLocked reports whether the account is temporarily locked.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().Before(*u.LockedUntil)
}

// CanLogin checks account state before password verification.
func (u *User) CanLogin() error {
	if !u.IsActive {
		return apperror.NewForbidden("account is disabled")
	}
	if u.IsLocked() {
		return apperror.NewForbidden("account is temporarily locked")
	}
	return nil
}

// RecordFailedLogin increments the counter and locks past the limit.
func (u *User) RecordFailedLogin(maxAttempts int, lockDuration time.Duration) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		lockUntil := time.Now().Add(lockDuration)
		u.LockedUntil = &lockUntil
	}
}

// RecordSuccessfulLogin resets the counter.
func (u *User) RecordSuccessfulLogin() {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	now := time.Now().UTC()
	u.LastLoginAt = &now
}

// HasRole checks role membership.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RefreshToken is a stored, hashed refresh token.
type RefreshToken struct {
	ID            id.ID      `db:"id"`
	UserID        id.ID      `db:"user_id"`
	TokenHash     string     `db:"token_hash"`
	ExpiresAt     time.Time  `db:"expires_at"`
	CreatedAt     time.Time  `db:"created_at"`
	RevokedAt     *time.Time `db:"revoked_at"`
	RevokedReason string     `db:"revoked_reason"`
}

// IsValid reports whether the token can still be exchanged.
func (t *RefreshToken) IsValid() bool {
	if t.RevokedAt != nil {
		return false
	}
	return time.Now().Before(t.ExpiresAt)
}

// TokenPair is the login response payload.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"`
}

// Credentials for login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
