package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/service/auth"
	"github.com/techstore/storefront/internal/storage/memory"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T) (*auth.Service, domain.UserRepository, *clock) {
	t.Helper()
	c := &clock{now: time.Now().UTC()}
	users := memory.NewUserRepository()
	issuer := auth.NewTokenIssuer("access-secret", "refresh-secret", time.Hour, 24*time.Hour, c.Now)
	svc := auth.NewService(users, issuer, auth.NewHasher(bcrypt.MinCost), auth.WithClock(c.Now))
	return svc, users, c
}

func register(t *testing.T, svc *auth.Service, email string) auth.Session {
	t.Helper()
	session, err := svc.Register(context.Background(), auth.RegisterInput{
		Name:     "Ana",
		Email:    email,
		Password: "Secreto123",
	})
	require.NoError(t, err)
	return session
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		valid    bool
	}{
		{password: "Secreto123", valid: true},
		{password: "Short1A", valid: false},
		{password: "alllowercase1", valid: false},
		{password: "ALLUPPERCASE1", valid: false},
		{password: "NoDigitsHere", valid: false},
	}
	for _, tc := range tests {
		err := auth.ValidatePassword(tc.password)
		if tc.valid {
			require.NoError(t, err, tc.password)
		} else {
			require.ErrorIs(t, err, domain.ErrValidation, tc.password)
		}
	}
}

func TestRegister_NormalizesEmailAndRejectsDuplicate(t *testing.T) {
	svc, users, _ := newService(t)

	session := register(t, svc, "  Ana@Example.COM ")
	require.Equal(t, "ana@example.com", session.User.Email)
	require.Equal(t, domain.RoleUser, session.User.Role)
	require.NotEmpty(t, session.Tokens.AccessToken)
	require.NotEmpty(t, session.Tokens.RefreshToken)

	stored, err := users.GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	require.NotEqual(t, "Secreto123", stored.PasswordHash)

	_, err = svc.Register(context.Background(), auth.RegisterInput{Name: "Otra", Email: "ANA@example.com", Password: "Secreto123"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Register(context.Background(), auth.RegisterInput{Name: "Débil", Email: "weak@example.com", Password: "weak"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogin(t *testing.T) {
	svc, users, _ := newService(t)
	ctx := context.Background()
	registered := register(t, svc, "ana@example.com")

	session, err := svc.Login(ctx, "ANA@example.com", "Secreto123")
	require.NoError(t, err)
	require.NotNil(t, session.User.LastLoginAt)

	_, err = svc.Login(ctx, "ana@example.com", "Wrong1234")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svc.Login(ctx, "nobody@example.com", "Secreto123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	user, err := users.Get(ctx, registered.User.ID)
	require.NoError(t, err)
	user.Active = false
	require.NoError(t, users.Save(ctx, user))

	_, err = svc.Login(ctx, "ana@example.com", "Secreto123")
	require.ErrorIs(t, err, domain.ErrAccountDisabled)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAuthenticate(t *testing.T) {
	svc, users, c := newService(t)
	ctx := context.Background()
	session := register(t, svc, "ana@example.com")

	principal, err := svc.Authenticate(ctx, session.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, principal.UserID)
	require.Equal(t, domain.RoleUser, principal.Role)

	_, err = svc.Authenticate(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	user, err := users.Get(ctx, session.User.ID)
	require.NoError(t, err)
	user.Active = false
	require.NoError(t, users.Save(ctx, user))
	_, err = svc.Authenticate(ctx, session.Tokens.AccessToken)
	require.ErrorIs(t, err, domain.ErrAccountDisabled)

	c.now = c.now.Add(2 * time.Hour)
	_, err = svc.Authenticate(ctx, session.Tokens.AccessToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestAuthenticate_RejectsForeignSignature(t *testing.T) {
	svc, _, _ := newService(t)
	other := auth.NewTokenIssuer("other-secret", "other-refresh", time.Hour, time.Hour, nil)

	token, err := other.Access(domain.User{ID: "u-1", Email: "x@example.com", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefresh(t *testing.T) {
	svc, users, _ := newService(t)
	ctx := context.Background()
	session := register(t, svc, "ana@example.com")

	access, err := svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	principal, err := svc.Authenticate(ctx, access)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, principal.UserID)

	_, err = svc.Refresh(ctx, session.Tokens.AccessToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.Refresh(ctx, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	user, err := users.Get(ctx, session.User.ID)
	require.NoError(t, err)
	user.Active = false
	require.NoError(t, users.Save(ctx, user))
	_, err = svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestEnsureAdmin(t *testing.T) {
	svc, users, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "Admin@Store.mx", "Admin12345"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin@store.mx", "Admin12345"))
	require.NoError(t, svc.EnsureAdmin(ctx, "", ""))

	admin, err := users.GetByEmail(ctx, "admin@store.mx")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)

	page, err := users.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	session, err := svc.Login(ctx, "admin@store.mx", "Admin12345")
	require.NoError(t, err)
	require.True(t, session.User.IsAdmin())
}
