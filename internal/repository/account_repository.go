package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-approval-api/internal/models"
)

const (
	studentAccountColumns = `id, 'student' AS role, name, email, department, password_hash, created_at, updated_at`
	staffAccountColumns   = `id, role, name, email, department, password_hash, created_at, updated_at`
)

// AccountRepository provides database access for students and staff.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByEmail returns the account registered under email for the given role.
// Students and staff live in separate tables; staff rows must also match the role.
func (r *AccountRepository) FindByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error) {
	var (
		query string
		args  []interface{}
	)
	switch {
	case role == models.RoleStudent:
		query = `SELECT ` + studentAccountColumns + ` FROM students WHERE LOWER(email) = LOWER($1) LIMIT 1`
		args = []interface{}{email}
	case role.IsStaff():
		query = `SELECT ` + staffAccountColumns + ` FROM staff WHERE LOWER(email) = LOWER($1) AND role = $2 LIMIT 1`
		args = []interface{}{email, role}
	default:
		return nil, sql.ErrNoRows
	}

	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &account, nil
}

// FindByID returns an account by identifier within the role's table.
func (r *AccountRepository) FindByID(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	var (
		query string
		args  []interface{}
	)
	switch {
	case role == models.RoleStudent:
		query = `SELECT ` + studentAccountColumns + ` FROM students WHERE id = $1 LIMIT 1`
		args = []interface{}{id}
	case role.IsStaff():
		query = `SELECT ` + staffAccountColumns + ` FROM staff WHERE id = $1 AND role = $2 LIMIT 1`
		args = []interface{}{id, role}
	default:
		return nil, sql.ErrNoRows
	}

	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return &account, nil
}

// CreateStudent inserts a new student account.
func (r *AccountRepository) CreateStudent(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, name, department, contact, email, password_hash, created_at, updated_at)
VALUES (:id, :name, :department, :contact, :email, :password_hash, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateStaff inserts a new coordinator or head of department.
func (r *AccountRepository) CreateStaff(ctx context.Context, staff *models.Staff) error {
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = now
	}
	staff.UpdatedAt = now

	const query = `INSERT INTO staff (id, name, role, department, email, password_hash, created_at, updated_at)
VALUES (:id, :name, :role, :department, :email, :password_hash, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, staff); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create staff: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash. It returns sql.ErrNoRows for unknown accounts.
func (r *AccountRepository) UpdatePassword(ctx context.Context, role models.Role, id, passwordHash string, updatedAt time.Time) error {
	table := "students"
	if role.IsStaff() {
		table = "staff"
	}
	query := fmt.Sprintf(`UPDATE %s SET password_hash = $2, updated_at = $3 WHERE id = $1`, table)
	result, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check password update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListStudents returns every student ordered by name.
func (r *AccountRepository) ListStudents(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT id, name, department, contact, email, password_hash, created_at, updated_at FROM students ORDER BY name ASC, id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListStaff returns staff members, optionally restricted to a role.
func (r *AccountRepository) ListStaff(ctx context.Context, role models.Role) ([]models.Staff, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, name, role, department, email, password_hash, created_at, updated_at FROM staff`)
	args := make([]interface{}, 0, 1)
	if role != "" {
		args = append(args, role)
		fmt.Fprintf(&query, " WHERE role = $%d", len(args))
	}
	query.WriteString(" ORDER BY role ASC, name ASC")

	var staff []models.Staff
	if err := r.db.SelectContext(ctx, &staff, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return staff, nil
}

// CreateAuditLog stores an audit log entry.
func (r *AccountRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, account_id, role, action, resource, resource_id, new_values, ip_address, user_agent, created_at)
VALUES (:id, :account_id, :role, :action, :resource, :resource_id, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
