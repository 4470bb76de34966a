package models

import "time"

// Student owns attendance exception requests.
type Student struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Department   string    `db:"department" json:"department"`
	Contact      string    `db:"contact" json:"contact"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Account returns the authentication view of the student.
func (s Student) Account() Account {
	return Account{
		ID:           s.ID,
		Role:         RoleStudent,
		Name:         s.Name,
		Email:        s.Email,
		Department:   s.Department,
		PasswordHash: s.PasswordHash,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
