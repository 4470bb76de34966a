package models

import "time"

// RequestStatus captures the lifecycle state of an attendance exception request.
type RequestStatus string

const (
	RequestStatusPending               RequestStatus = "pending"
	RequestStatusApprovedByCoordinator RequestStatus = "approved_by_coordinator"
	RequestStatusApproved              RequestStatus = "approved"
	RequestStatusRejected              RequestStatus = "rejected"
)

// RequestStatuses lists every status in lifecycle order.
var RequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusApprovedByCoordinator,
	RequestStatusApproved,
	RequestStatusRejected,
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	for _, known := range RequestStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further decisions are accepted.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// Decision is the outcome chosen by a deciding actor.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is approved or rejected.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Request is an attendance exception submitted by a student.
// The owner fields are populated on joined reads only.
type Request struct {
	ID             int64         `db:"id" json:"id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	Subject        string        `db:"subject" json:"subject"`
	Description    string        `db:"description" json:"description"`
	StartTime      time.Time     `db:"start_time" json:"start_time"`
	EndTime        time.Time     `db:"end_time" json:"end_time"`
	Contact        string        `db:"contact" json:"contact"`
	AttachmentPath *string       `db:"attachment_path" json:"attachment_path,omitempty"`
	Status         RequestStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`

	StudentName       string `db:"student_name" json:"student_name,omitempty"`
	StudentDepartment string `db:"student_department" json:"student_department,omitempty"`
	StudentEmail      string `db:"student_email" json:"student_email,omitempty"`
}

// HasAttachment reports whether evidence was uploaded with the request.
func (r Request) HasAttachment() bool {
	return r.AttachmentPath != nil && *r.AttachmentPath != ""
}

// Approval is an append-only record of a single decision.
type Approval struct {
	ID           int64     `db:"id" json:"id"`
	RequestID    int64     `db:"request_id" json:"request_id"`
	ApproverRole Role      `db:"approver_role" json:"approver_role"`
	ApproverName string    `db:"approver_name" json:"approver_name"`
	Decision     Decision  `db:"decision" json:"decision"`
	Remarks      string    `db:"remarks" json:"remarks"`
	DecidedAt    time.Time `db:"decided_at" json:"decided_at"`
}

// RequestFilter constrains listing queries. An empty StudentID means every student.
type RequestFilter struct {
	StudentID string
	Status    RequestStatus
}

// StatusCounts summarises requests per lifecycle state.
type StatusCounts struct {
	Total                 int `json:"total"`
	Pending               int `json:"pending"`
	ApprovedByCoordinator int `json:"approved_by_coordinator"`
	Approved              int `json:"approved"`
	Rejected              int `json:"rejected"`
}

// Add increments the bucket for status.
func (c *StatusCounts) Add(status RequestStatus, n int) {
	switch status {
	case RequestStatusPending:
		c.Pending += n
	case RequestStatusApprovedByCoordinator:
		c.ApprovedByCoordinator += n
	case RequestStatusApproved:
		c.Approved += n
	case RequestStatusRejected:
		c.Rejected += n
	default:
		return
	}
	c.Total += n
}
