package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-approval-api/internal/models"
)

// ErrStatusChanged is returned when the guarded status update matched no row.
var ErrStatusChanged = errors.New("request status changed concurrently")

const requestColumns = `r.id, r.student_id, r.subject, r.description, r.start_time, r.end_time, r.contact,
       r.attachment_path, r.status, r.created_at, r.updated_at`

const requestWithOwner = `SELECT ` + requestColumns + `,
       s.name AS student_name, s.department AS student_department, s.email AS student_email
FROM requests r
JOIN students s ON s.id = r.student_id`

// DecisionFunc inspects the locked request and returns the next status with the approval to append.
// Returning an error aborts the transaction without writing anything.
type DecisionFunc func(current models.Request) (models.RequestStatus, *models.Approval, error)

// RequestRepository persists attendance exception requests and their approvals.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request and fills in the generated id and timestamps.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	const query = `INSERT INTO requests (student_id, subject, description, start_time, end_time, contact, attachment_path, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query,
		req.StudentID,
		req.Subject,
		req.Description,
		req.StartTime,
		req.EndTime,
		req.Contact,
		req.AttachmentPath,
		req.Status,
	)
	if err := row.Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request joined with its owner.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	const query = requestWithOwner + `
WHERE r.id = $1`
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	query := strings.Builder{}
	query.WriteString(requestWithOwner)
	query.WriteString("\nWHERE 1=1")

	args := make([]interface{}, 0, 2)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		fmt.Fprintf(&query, " AND r.student_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&query, " AND r.status = $%d", len(args))
	}
	query.WriteString("\nORDER BY r.created_at DESC, r.id DESC")

	requests := make([]models.Request, 0)
	if err := r.db.SelectContext(ctx, &requests, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// CountByStatus aggregates requests per status, optionally for a single student.
func (r *RequestRepository) CountByStatus(ctx context.Context, studentID string) (models.StatusCounts, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT status, COUNT(*) AS total FROM requests`)
	args := make([]interface{}, 0, 1)
	if studentID != "" {
		args = append(args, studentID)
		fmt.Fprintf(&query, " WHERE student_id = $%d", len(args))
	}
	query.WriteString(" GROUP BY status")

	var rows []struct {
		Status models.RequestStatus `db:"status"`
		Total  int                  `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return models.StatusCounts{}, fmt.Errorf("count requests by status: %w", err)
	}

	var counts models.StatusCounts
	for _, row := range rows {
		counts.Add(row.Status, row.Total)
	}
	return counts, nil
}

// ListApprovals returns the decision history for a request in the order it happened.
func (r *RequestRepository) ListApprovals(ctx context.Context, requestID int64) ([]models.Approval, error) {
	const query = `SELECT id, request_id, approver_role, approver_name, decision, remarks, decided_at
FROM approvals WHERE request_id = $1
ORDER BY decided_at ASC, id ASC`
	approvals := make([]models.Approval, 0)
	if err := r.db.SelectContext(ctx, &approvals, query, requestID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

// ListAttachmentPaths returns every blob name still referenced by a request.
func (r *RequestRepository) ListAttachmentPaths(ctx context.Context) ([]string, error) {
	const query = `SELECT attachment_path FROM requests WHERE attachment_path IS NOT NULL AND attachment_path <> ''`
	paths := make([]string, 0)
	if err := r.db.SelectContext(ctx, &paths, query); err != nil {
		return nil, fmt.Errorf("list attachment paths: %w", err)
	}
	return paths, nil
}

// ApplyDecision locks the request row, lets decide choose the outcome and then writes the
// status change and the approval inside the same transaction.
func (r *RequestRepository) ApplyDecision(ctx context.Context, id int64, decide DecisionFunc) (updated *models.Request, approval *models.Approval, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin decision transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Request
	const selectQuery = `SELECT ` + requestColumns + `
FROM requests r WHERE r.id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, selectQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock request: %w", err)
	}

	next, approval, err := decide(current)
	if err != nil {
		return nil, nil, err
	}
	if approval == nil {
		err = fmt.Errorf("decision produced no approval")
		return nil, nil, err
	}
	if approval.DecidedAt.IsZero() {
		approval.DecidedAt = time.Now().UTC()
	}
	approval.RequestID = current.ID

	const updateQuery = `UPDATE requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := tx.ExecContext(ctx, updateQuery, next, approval.DecidedAt, current.ID, current.Status)
	if err != nil {
		return nil, nil, fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("check request update rows: %w", err)
	}
	if rows == 0 {
		err = ErrStatusChanged
		return nil, nil, err
	}

	const insertQuery = `INSERT INTO approvals (request_id, approver_role, approver_name, decision, remarks, decided_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	if err = tx.QueryRowxContext(ctx, insertQuery,
		approval.RequestID,
		approval.ApproverRole,
		approval.ApproverName,
		approval.Decision,
		approval.Remarks,
		approval.DecidedAt,
	).Scan(&approval.ID); err != nil {
		return nil, nil, fmt.Errorf("insert approval: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit decision: %w", err)
	}

	current.Status = next
	current.UpdatedAt = approval.DecidedAt
	return &current, approval, nil
}
