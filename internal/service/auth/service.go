package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
)

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// Session — пользователь и выданные ему токены.
type Session struct {
	User   domain.User
	Tokens Tokens
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(s *Service) {
		s.now = clock
	}
}

// Service регистрирует пользователей, выдаёт и проверяет токены.
type Service struct {
	users  domain.UserRepository
	tokens *TokenIssuer
	hasher Hasher
	now    domain.Clock
	logger *log.Entry
}

// NewService создаёт сервис аутентификации.
func NewService(users domain.UserRepository, tokens *TokenIssuer, hasher Hasher, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens, hasher: hasher}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "auth")
	}
	return s
}

// Register создаёт учётную запись с ролью user и сразу выдаёт токены.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if name == "" || email == "" {
		return Session{}, fmt.Errorf("name and email are required: %w", domain.ErrValidation)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return Session{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, err
	}

	now := s.now.Now()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Phone:        strings.TrimSpace(in.Phone),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return Session{}, err
	}

	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	return Session{User: user, Tokens: tokens}, nil
}

// Login проверяет учётные данные, отмечает время входа и выдаёт токены.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, err
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		s.logger.WithField("user_id", user.ID).Warn("login rejected: wrong password")
		return Session{}, domain.ErrInvalidCredentials
	}
	if !user.Active {
		return Session{}, domain.ErrAccountDisabled
	}

	now := s.now.Now()
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.users.Save(ctx, user); err != nil {
		return Session{}, fmt.Errorf("stamp last login: %w", err)
	}

	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}

	s.logger.WithField("user_id", user.ID).Info("user logged in")
	return Session{User: user, Tokens: tokens}, nil
}

// Refresh выдаёт новый access-токен по refresh-токену.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", fmt.Errorf("refresh token is required: %w", domain.ErrValidation)
	}

	userID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrInvalidToken
		}
		return "", err
	}
	if !user.Active {
		return "", domain.ErrInvalidToken
	}

	return s.tokens.Access(user)
}

// Authenticate проверяет access-токен и перечитывает пользователя.
// Удалённый пользователь — ErrInvalidToken, деактивированный — ErrAccountDisabled.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (domain.Principal, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return domain.Principal{}, err
	}

	user, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Principal{}, fmt.Errorf("%w: user no longer exists", domain.ErrInvalidToken)
		}
		return domain.Principal{}, err
	}
	if !user.Active {
		return domain.Principal{}, domain.ErrAccountDisabled
	}

	return domain.Principal{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// Me возвращает текущего пользователя.
func (s *Service) Me(ctx context.Context, principal domain.Principal) (domain.User, error) {
	return s.users.Get(ctx, principal.UserID)
}

// EnsureAdmin создаёт администратора, если учётной записи с таким email ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	now := s.now.Now()
	admin := domain.User{
		ID:           uuid.NewString(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil && !errors.Is(err, domain.ErrEmailTaken) {
		return fmt.Errorf("seed admin: %w", err)
	}

	s.logger.WithField("email", email).Info("admin account seeded")
	return nil
}
