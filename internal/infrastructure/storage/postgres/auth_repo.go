package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/auth"
)

var userCols = []string{
	"id", "username", "password_hash", "display_name", "is_active",
	"failed_login_attempts", "locked_until", "last_login_at",
	"created_at", "updated_at",
}

var tokenCols = []string{
	"id", "user_id", "token_hash", "expires_at", "created_at",
	"revoked_at", "revoked_reason",
}

// AuthRepo is the postgres user and refresh token store.
type AuthRepo struct {
	txManager *TxManager
}

var (
	_ auth.UserRepository  = (*AuthRepo)(nil)
	_ auth.TokenRepository = (*AuthRepo)(nil)
)

// NewAuthRepo creates the auth repository.
func NewAuthRepo(txManager *TxManager) *AuthRepo {
	return &AuthRepo{txManager: txManager}
}

func (r *AuthRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	q := builder().Select(userCols...).From("users").
		Where(squirrel.Eq{"id": userID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var u auth.User
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &u, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", userID.String())
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *AuthRepo) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	q := builder().Select(userCols...).From("users").
		Where(squirrel.Eq{"username": username}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var u auth.User
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &u, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", username)
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

func (r *AuthRepo) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (r *AuthRepo) Create(ctx context.Context, u *auth.User) error {
	q := builder().Insert("users").
		Columns(userCols...).
		Values(u.ID, u.Username, u.PasswordHash, u.DisplayName, u.IsActive,
			u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt,
			u.CreatedAt, u.UpdatedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("user", "username", u.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *AuthRepo) Update(ctx context.Context, u *auth.User) error {
	u.UpdatedAt = time.Now().UTC()
	q := builder().Update("users").
		Set("password_hash", u.PasswordHash).
		Set("display_name", u.DisplayName).
		Set("is_active", u.IsActive).
		Set("failed_login_attempts", u.FailedLoginAttempts).
		Set("locked_until", u.LockedUntil).
		Set("last_login_at", u.LastLoginAt).
		Set("updated_at", u.UpdatedAt).
		Where(squirrel.Eq{"id": u.ID})
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("user", u.ID.String())
	}
	return nil
}

func (r *AuthRepo) LoadRoles(ctx context.Context, userID id.ID) ([]string, error) {
	var roles []string
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &roles,
		`SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return roles, nil
}

func (r *AuthRepo) AssignRole(ctx context.Context, userID id.ID, role string) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO user_roles (user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING
	`, userID, role)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *AuthRepo) RevokeRole(ctx context.Context, userID id.ID, role string) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, role)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

func (r *AuthRepo) SaveRefreshToken(ctx context.Context, t *auth.RefreshToken) error {
	q := builder().Insert("refresh_tokens").
		Columns(tokenCols...).
		Values(t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
			t.RevokedAt, t.RevokedReason)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *AuthRepo) GetRefreshToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	q := builder().Select(tokenCols...).From("refresh_tokens").
		Where(squirrel.Eq{"token_hash": tokenHash}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t auth.RefreshToken
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewUnauthorized("invalid refresh token")
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &t, nil
}

func (r *AuthRepo) RevokeRefreshToken(ctx context.Context, tokenID id.ID, reason string) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(), revoked_reason = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, tokenID, reason)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *AuthRepo) RevokeAllUserTokens(ctx context.Context, userID id.ID, reason string) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(), revoked_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, reason)
	if err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}
