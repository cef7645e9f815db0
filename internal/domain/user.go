package domain

import (
	"strings"
	"time"
)

// Role определяет набор прав пользователя.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSeller Role = "vendedor"
)

// Valid проверяет, что роль входит в перечисление.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSeller:
		return true
	default:
		return false
	}
}

// User — учётная запись покупателя или сотрудника.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"nombre"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Phone        string     `json:"telefono,omitempty"`
	Avatar       string     `json:"avatar,omitempty"`
	Active       bool       `json:"activo"`
	LastLoginAt  *time.Time `json:"ultimoAcceso,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsAdmin сообщает, что пользователь — администратор.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// OrderOwner — данные владельца, которые показываются вместе с заказом.
type OrderOwner struct {
	ID    string `json:"id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

// Owner возвращает сокращённые данные пользователя для ответа с заказом.
func (u User) Owner() OrderOwner {
	return OrderOwner{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NormalizeEmail приводит email к каноническому виду.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Principal — аутентифицированный субъект запроса.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

// IsAdmin сообщает, что субъект — администратор.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// HasRole проверяет принадлежность субъекта одной из ролей.
func (p Principal) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}
