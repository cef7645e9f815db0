package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/techstore/storefront/internal/domain"
)

const defaultUserLimit = 20

type userRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.User
	byEmail map[string]string
}

// NewUserRepository создаёт in-memory репозиторий учётных записей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		items:   make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	user.Email = domain.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return domain.ErrEmailTaken
	}
	r.items[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *userRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(r.items[id]), nil
}

func (r *userRepositoryInMemory) List(_ context.Context, page domain.PageRequest) (domain.Page[domain.User], error) {
	req := page.Normalize(defaultUserLimit)

	r.mu.RLock()
	users := make([]domain.User, 0, len(r.items))
	for _, user := range r.items {
		users = append(users, cloneUser(user))
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID > users[j].ID
	})

	return domain.Page[domain.User]{
		Items:       domain.Window(users, req),
		Total:       len(users),
		PageRequest: req,
	}, nil
}

func (r *userRepositoryInMemory) Save(_ context.Context, user domain.User) error {
	user.Email = domain.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner, taken := r.byEmail[user.Email]; taken && owner != user.ID {
		return domain.ErrEmailTaken
	}
	delete(r.byEmail, current.Email)
	r.items[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func cloneUser(src domain.User) domain.User {
	dst := src
	dst.LastLoginAt = cloneTime(src.LastLoginAt)
	return dst
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
