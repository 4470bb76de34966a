package models

import (
	"strings"
	"time"
)

// Role is the closed set of account roles. It never changes after an account is created.
type Role string

const (
	RoleStudent     Role = "student"
	RoleCoordinator Role = "coordinator"
	RoleHOD         Role = "hod"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCoordinator, RoleHOD:
		return true
	}
	return false
}

// IsStaff reports whether r is a deciding role.
func (r Role) IsStaff() bool {
	return r == RoleCoordinator || r == RoleHOD
}

// ParseRole normalises user input into a Role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Account is the role-agnostic view of a student or staff member used by authentication.
type Account struct {
	ID           string    `db:"id" json:"id"`
	Role         Role      `db:"role" json:"role"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Department   string    `db:"department" json:"department"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Staff is a coordinator or head of department able to decide requests.
type Staff struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Role         Role      `db:"role" json:"role"`
	Department   string    `db:"department" json:"department"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Account returns the authentication view of the staff member.
func (s Staff) Account() Account {
	return Account{
		ID:           s.ID,
		Role:         s.Role,
		Name:         s.Name,
		Email:        s.Email,
		Department:   s.Department,
		PasswordHash: s.PasswordHash,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
