package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/techstore/storefront/internal/domain"
)

const (
	defaultUserLimit = 20

	userColumns = `id, name, email, password_hash, role, phone, avatar, active, last_login_at, created_at, updated_at`
)

type userRepository struct {
	db *sql.DB
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		user.ID, user.Name, domain.NormalizeEmail(user.Email), user.PasswordHash, string(user.Role),
		user.Phone, user.Avatar, user.Active, user.LastLoginAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email))
}

func (r *userRepository) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.User], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	req := page.Normalize(defaultUserLimit)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, req.Limit, req.Offset())
	if err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, req.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return domain.Page[domain.User]{}, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("iterate user rows: %w", err)
	}

	return domain.Page[domain.User]{Items: users, Total: total, PageRequest: req}, nil
}

func (r *userRepository) Save(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET name = $1,
		    email = $2,
		    password_hash = $3,
		    role = $4,
		    phone = $5,
		    avatar = $6,
		    active = $7,
		    last_login_at = $8,
		    updated_at = $9
		WHERE id = $10
	`,
		user.Name, domain.NormalizeEmail(user.Email), user.PasswordHash, string(user.Role),
		user.Phone, user.Avatar, user.Active, user.LastLoginAt, user.UpdatedAt, user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user      domain.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.Phone,
		&user.Avatar, &user.Active, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.Role = domain.Role(role)
	user.LastLoginAt = nullTime(lastLogin)
	return user, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
