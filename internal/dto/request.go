package dto

import (
	"io"
	"os"
	"time"

	"github.com/noah-isme/attendance-approval-api/internal/models"
)

// SubmitRequest is the student payload for a new attendance exception.
// Window bounds accept RFC3339 or the HTML datetime-local layout.
type SubmitRequest struct {
	Subject     string `form:"subject" json:"subject" validate:"required,max=255"`
	Description string `form:"description" json:"description" validate:"required"`
	StartTime   string `form:"start_time" json:"start_time" validate:"required"`
	EndTime     string `form:"end_time" json:"end_time" validate:"required"`
	Contact     string `form:"contact" json:"contact" validate:"required,max=20"`
}

// AttachmentUpload carries an optional evidence file.
type AttachmentUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// DecisionRequest is a coordinator or head of department verdict.
type DecisionRequest struct {
	Decision models.Decision `json:"decision" validate:"required"`
	Remarks  string          `json:"remarks" validate:"max=1000"`
}

// DecisionResult returns the updated request with the appended approval.
type DecisionResult struct {
	Request  models.Request  `json:"request"`
	Approval models.Approval `json:"approval"`
}

// RequestQuery filters list and export operations.
type RequestQuery struct {
	Status string `form:"status"`
	Search string `form:"search"`
}

// RequestListResponse is the dashboard payload.
type RequestListResponse struct {
	Items  []models.Request    `json:"items"`
	Stats  models.StatusCounts `json:"stats"`
	Filter string              `json:"filter"`
	Search string              `json:"search,omitempty"`
}

// RequestDetail combines a request with its decision history.
type RequestDetail struct {
	Request   models.Request    `json:"request"`
	Approvals []models.Approval `json:"approvals"`
}

// AttachmentLink is a short-lived download URL.
type AttachmentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AttachmentFile is an opened attachment ready to stream. Callers must close File.
type AttachmentFile struct {
	Name        string
	ContentType string
	ModTime     time.Time
	File        *os.File
}

// ExportFile is a rendered export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
