package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tindahan/internal/core/appctx"
)

// JWTConfig holds token signing configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "tindahan",
		AccessTokenTTL: 15 * time.Minute,
	}
}

// Claims are the access token claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"uid"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
}

// JWTService signs and validates access tokens.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateAccessToken signs a new access token.
func (s *JWTService) GenerateAccessToken(userID, name string, roles []string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		Name:   name,
		Roles:  roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a token and returns the request user.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &appctx.User{
		UserID: claims.UserID,
		Name:   claims.Name,
		Roles:  claims.Roles,
	}, nil
}
