package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/service/auth"
)

const defaultUserLimit = 20

// ProfilePatch — изменяемые поля профиля; nil-поля не меняются.
type ProfilePatch struct {
	Name   *string
	Phone  *string
	Avatar *string
}

// Service управляет профилями и учётными записями.
type Service struct {
	users  domain.UserRepository
	hasher auth.Hasher
	now    domain.Clock
	logger *log.Entry
}

// NewService создаёт сервис пользователей.
func NewService(users domain.UserRepository, hasher auth.Hasher, clock domain.Clock, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "users")
	}
	return &Service{users: users, hasher: hasher, now: clock, logger: logger}
}

// Profile возвращает профиль текущего пользователя.
func (s *Service) Profile(ctx context.Context, principal domain.Principal) (domain.User, error) {
	return s.users.Get(ctx, principal.UserID)
}

// Owners возвращает владельцев заказов по id. Удалённые пользователи
// в результат не попадают.
func (s *Service) Owners(ctx context.Context, ids []string) (map[string]domain.OrderOwner, error) {
	owners := make(map[string]domain.OrderOwner, len(ids))
	for _, id := range ids {
		if _, ok := owners[id]; ok || id == "" {
			continue
		}
		user, err := s.users.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load order owner %s: %w", id, err)
		}
		owners[id] = user.Owner()
	}
	return owners, nil
}

// UpdateProfile меняет имя, телефон и аватар.
func (s *Service) UpdateProfile(ctx context.Context, principal domain.Principal, patch ProfilePatch) (domain.User, error) {
	user, err := s.users.Get(ctx, principal.UserID)
	if err != nil {
		return domain.User{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.User{}, fmt.Errorf("name must not be empty: %w", domain.ErrValidation)
		}
		user.Name = name
	}
	if patch.Phone != nil {
		user.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Avatar != nil {
		user.Avatar = strings.TrimSpace(*patch.Avatar)
	}
	user.UpdatedAt = s.now.Now()

	if err := s.users.Save(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// ChangePassword меняет пароль после проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, principal domain.Principal, current, next string) error {
	user, err := s.users.Get(ctx, principal.UserID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Compare(user.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrWrongPassword
	}
	if err := auth.ValidatePassword(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now.Now()
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}

	s.logger.WithField("user_id", user.ID).Info("password changed")
	return nil
}

// List возвращает страницу пользователей, новые первыми.
func (s *Service) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.User], error) {
	return s.users.List(ctx, page.Normalize(defaultUserLimit))
}

// ToggleActive активирует или деактивирует учётную запись.
// Администратор не может деактивировать сам себя.
func (s *Service) ToggleActive(ctx context.Context, principal domain.Principal, userID string) (domain.User, error) {
	if principal.UserID == userID {
		return domain.User{}, fmt.Errorf("cannot toggle own account: %w", domain.ErrForbidden)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user.Active = !user.Active
	user.UpdatedAt = s.now.Now()
	if err := s.users.Save(ctx, user); err != nil {
		return domain.User{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id":  user.ID,
		"active":   user.Active,
		"actor_id": principal.UserID,
	}).Info("user active flag toggled")
	return user, nil
}
