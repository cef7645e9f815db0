package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/techstore/storefront/internal/domain"
)

// Claims — содержимое access-токена. Subject хранит идентификатор пользователя.
type Claims struct {
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Tokens — пара токенов, выдаваемая при входе.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer подписывает и проверяет токены HS256.
type TokenIssuer struct {
	secret        []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           domain.Clock
}

// NewTokenIssuer создаёт издателя токенов.
func NewTokenIssuer(secret, refreshSecret string, accessTTL, refreshTTL time.Duration, clock domain.Clock) *TokenIssuer {
	return &TokenIssuer{
		secret:        []byte(secret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           clock,
	}
}

// Issue выпускает access и refresh токены для пользователя.
func (i *TokenIssuer) Issue(user domain.User) (Tokens, error) {
	access, err := i.Access(user)
	if err != nil {
		return Tokens{}, err
	}

	now := i.now.Now()
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
	})
	signedRefresh, err := refresh.SignedString(i.refreshSecret)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Tokens{AccessToken: access, RefreshToken: signedRefresh}, nil
}

// Access выпускает только access-токен.
func (i *TokenIssuer) Access(user domain.User) (string, error) {
	now := i.now.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccess проверяет подпись и срок access-токена.
func (i *TokenIssuer) ParseAccess(raw string) (Claims, error) {
	var claims Claims
	if err := i.parse(raw, i.secret, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// ParseRefresh проверяет refresh-токен и возвращает идентификатор пользователя.
func (i *TokenIssuer) ParseRefresh(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	if err := i.parse(raw, i.refreshSecret, &claims); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (i *TokenIssuer) parse(raw string, secret []byte, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}
	return nil
}
