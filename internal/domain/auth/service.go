package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/tx"
	"tindahan/pkg/logger"
)

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	MaxLoginAttempts   int
	LockDuration       time.Duration
	PasswordMinLength  int
	RefreshTokenExpiry time.Duration
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxLoginAttempts:   5,
		LockDuration:       15 * time.Minute,
		PasswordMinLength:  8,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}
}

// Service provides authentication logic.
type Service struct {
	users      UserRepository
	tokens     TokenRepository
	txManager  tx.Manager
	jwtService *JWTService
	config     ServiceConfig
}

// NewService creates the auth service.
func NewService(
	users UserRepository,
	tokens TokenRepository,
	txManager tx.Manager,
	jwtService *JWTService,
	config ServiceConfig,
) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		txManager:  txManager,
		jwtService: jwtService,
		config:     config,
	}
}

// Register creates a new staff account with the given roles.
func (s *Service) Register(ctx context.Context, username, password, displayName string, roles []string) (*User, error) {
	if username == "" {
		return nil, apperror.NewValidation("username is required").WithDetail("field", "username")
	}
	if len(password) < s.config.PasswordMinLength {
		return nil, apperror.NewValidation(
			fmt.Sprintf("password must be at least %d characters", s.config.PasswordMinLength),
		).WithDetail("field", "password")
	}

	exists, err := s.users.Exists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username exists: %w", err)
	}
	if exists {
		return nil, apperror.NewConflict("username already taken").WithDetail("username", username)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := NewUser(username, string(passwordHash))
	user.DisplayName = displayName

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		for _, role := range roles {
			if err := s.users.AssignRole(ctx, user.ID, role); err != nil {
				return fmt.Errorf("assign role %s: %w", role, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	logger.Info(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login authenticates and returns a token pair.
func (s *Service) Login(ctx context.Context, creds Credentials) (*TokenPair, *User, error) {
	user, err := s.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}
	if err := user.CanLogin(); err != nil {
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		user.RecordFailedLogin(s.config.MaxLoginAttempts, s.config.LockDuration)
		_ = s.users.Update(ctx, user)
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	roles, err := s.users.LoadRoles(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load roles: %w", err)
	}
	user.Roles = roles

	tokens, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	user.RecordSuccessfulLogin()
	_ = s.users.Update(ctx, user)

	logger.Info(ctx, "user logged in", "user_id", user.ID, "username", user.Username)
	return tokens, user, nil
}

// RefreshToken exchanges a valid refresh token for a new pair.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.tokens.GetRefreshToken(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid refresh token")
	}
	if !token.IsValid() {
		return nil, apperror.NewUnauthorized("refresh token expired or revoked")
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, apperror.NewUnauthorized("user not found")
	}
	if err := user.CanLogin(); err != nil {
		return nil, err
	}

	roles, _ := s.users.LoadRoles(ctx, user.ID)
	user.Roles = roles

	_ = s.tokens.RevokeRefreshToken(ctx, token.ID, "refreshed")

	return s.generateTokenPair(ctx, user)
}

// Logout revokes all of the user's refresh tokens.
func (s *Service) Logout(ctx context.Context, userID id.ID) error {
	return s.tokens.RevokeAllUserTokens(ctx, userID, "logout")
}

// GetUserByID loads a user with roles.
func (s *Service) GetUserByID(ctx context.Context, userID id.ID) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewNotFound("user", userID.String())
	}
	roles, _ := s.users.LoadRoles(ctx, user.ID)
	user.Roles = roles
	return user, nil
}

func (s *Service) generateTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(user.ID.String(), user.DisplayName, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshTokenRaw, err := generateRandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	refreshToken := &RefreshToken{
		ID:        id.New(),
		UserID:    user.ID,
		TokenHash: hashToken(refreshTokenRaw),
		ExpiresAt: time.Now().Add(s.config.RefreshTokenExpiry),
		CreatedAt: time.Now(),
	}
	if err := s.tokens.SaveRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenRaw,
		ExpiresAt:    expiresAt,
		TokenType:    "Bearer",
	}, nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func generateRandomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
