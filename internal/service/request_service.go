package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-approval-api/internal/dto"
	"github.com/noah-isme/attendance-approval-api/internal/models"
	"github.com/noah-isme/attendance-approval-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
	"github.com/noah-isme/attendance-approval-api/pkg/middleware/requestid"
	"github.com/noah-isme/attendance-approval-api/pkg/validation"
)

// DecisionOutcomeApplied labels decisions that changed a request.
const DecisionOutcomeApplied = "applied"

const (
	statsCacheAllKey     = "requests:stats:all"
	statsCacheStudentKey = "requests:stats:student:%s"
	// Generation keys must outlive every counts entry written under them.
	statsGenerationTTL = 24 * time.Hour
	statsGenerationNil = "0"
)

var windowLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

type requestStore interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id int64) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
	CountByStatus(ctx context.Context, studentID string) (models.StatusCounts, error)
	ListApprovals(ctx context.Context, requestID int64) ([]models.Approval, error)
	ApplyDecision(ctx context.Context, id int64, decide repository.DecisionFunc) (*models.Request, *models.Approval, error)
}

type attachmentStore interface {
	SaveStream(name string, r io.Reader) (int64, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

type attachmentSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string) (resourceID, relPath string, expiresAt time.Time, err error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AttachmentPolicy limits uploaded evidence.
type AttachmentPolicy struct {
	MaxSizeBytes      int64
	AllowedExtensions []string
}

func (p AttachmentPolicy) allows(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, allowed := range p.AllowedExtensions {
		if strings.TrimPrefix(strings.ToLower(allowed), ".") == ext {
			return true
		}
	}
	return false
}

// RequestServiceOption configures the service.
type RequestServiceOption func(*RequestService)

// WithStatsCache caches per-scope status counts.
func WithStatsCache(cache statsCache, ttl time.Duration) RequestServiceOption {
	return func(s *RequestService) {
		s.cache = cache
		s.statsTTL = ttl
	}
}

// WithRequestMetrics records workflow counters.
func WithRequestMetrics(metrics *MetricsService) RequestServiceOption {
	return func(s *RequestService) {
		s.metrics = metrics
	}
}

// WithAttachmentPolicy overrides upload limits.
func WithAttachmentPolicy(policy AttachmentPolicy) RequestServiceOption {
	return func(s *RequestService) {
		if policy.MaxSizeBytes > 0 {
			s.policy.MaxSizeBytes = policy.MaxSizeBytes
		}
		if len(policy.AllowedExtensions) > 0 {
			s.policy.AllowedExtensions = policy.AllowedExtensions
		}
	}
}

// WithDownloadBasePath sets the URL prefix used for signed attachment links.
func WithDownloadBasePath(prefix string) RequestServiceOption {
	return func(s *RequestService) {
		s.basePath = strings.TrimRight(prefix, "/")
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RequestServiceOption {
	return func(s *RequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// RequestService drives the attendance exception lifecycle and its read models.
type RequestService struct {
	repo      requestStore
	blobs     attachmentStore
	signer    attachmentSigner
	cache     statsCache
	statsTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	policy    AttachmentPolicy
	basePath  string
	now       func() time.Time
}

// NewRequestService constructs the service with defaults.
func NewRequestService(repo requestStore, blobs attachmentStore, signer attachmentSigner, logger *zap.Logger, opts ...RequestServiceOption) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RequestService{
		repo:      repo,
		blobs:     blobs,
		signer:    signer,
		validator: validation.New(),
		logger:    logger,
		policy: AttachmentPolicy{
			MaxSizeBytes:      16 << 20,
			AllowedExtensions: []string{"pdf", "png", "jpg", "jpeg", "doc", "docx"},
		},
		basePath: "/api/v1",
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit stores a new pending request owned by the calling student.
// The attachment, when present, is written before the row and removed again if the insert fails.
func (s *RequestService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitRequest, attachment *dto.AttachmentUpload) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit requests")
	}

	req.Subject = strings.TrimSpace(req.Subject)
	req.Description = strings.TrimSpace(req.Description)
	req.Contact = strings.TrimSpace(req.Contact)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)
	if err := s.validator.Struct(req); err != nil {
		return nil, validation.Error(err)
	}

	start, err := parseWindowTime(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time is not a valid date and time")
	}
	end, err := parseWindowTime(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time is not a valid date and time")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must not be before start_time")
	}

	var blobName string
	if attachment != nil && attachment.Reader != nil && attachment.Filename != "" {
		blobName, err = s.storeAttachment(attachment)
		if err != nil {
			return nil, err
		}
	}

	record := &models.Request{
		StudentID:   actor.AccountID,
		Subject:     req.Subject,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
		Contact:     req.Contact,
		Status:      models.RequestStatusPending,
	}
	if blobName != "" {
		record.AttachmentPath = &blobName
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if blobName != "" {
			if delErr := s.blobs.Delete(blobName); delErr != nil {
				s.logger.Warn("failed to remove attachment after insert failure", zap.String("attachment", blobName), zap.Error(delErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save request")
	}

	s.invalidateStats(ctx, actor.AccountID)
	s.metrics.RecordSubmission(blobName != "")
	s.logger.Info("attendance request submitted",
		zap.Int64("request_id", record.ID),
		zap.String("student_id", actor.AccountID),
		zap.Bool("attachment", blobName != ""),
		zap.String("trace_id", requestid.FromContext(ctx)),
	)
	return record, nil
}

// Decide applies a coordinator or head of department verdict. The status read, the update and the
// approval insert happen under one row lock, so concurrent decisions on a request serialise and
// the loser sees the winner's status.
func (s *RequestService) Decide(ctx context.Context, actor *models.JWTClaims, id int64, req dto.DecisionRequest) (*dto.DecisionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only coordinators and heads of department can decide requests")
	}
	req.Decision = models.Decision(strings.ToLower(strings.TrimSpace(string(req.Decision))))
	req.Remarks = strings.TrimSpace(req.Remarks)
	if err := s.validator.Struct(req); err != nil {
		return nil, validation.Error(err)
	}
	if !req.Decision.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}

	updated, approval, err := s.repo.ApplyDecision(ctx, id, func(current models.Request) (models.RequestStatus, *models.Approval, error) {
		next, err := nextStatus(current.Status, actor.Role, req.Decision)
		if err != nil {
			return "", nil, err
		}
		decidedAt := s.now()
		if current.UpdatedAt.After(decidedAt) {
			decidedAt = current.UpdatedAt
		}
		return next, &models.Approval{
			RequestID:    current.ID,
			ApproverRole: actor.Role,
			ApproverName: actor.Name,
			Decision:     req.Decision,
			Remarks:      req.Remarks,
			DecidedAt:    decidedAt,
		}, nil
	})
	if err != nil {
		appErr := s.decisionError(err)
		s.metrics.RecordDecision(actor.Role, req.Decision, appErr.Code)
		return nil, appErr
	}

	s.invalidateStats(ctx, updated.StudentID)
	s.metrics.RecordDecision(actor.Role, req.Decision, DecisionOutcomeApplied)
	s.logger.Info("attendance request decided",
		zap.Int64("request_id", id),
		zap.String("actor_id", actor.AccountID),
		zap.String("role", string(actor.Role)),
		zap.String("decision", string(req.Decision)),
		zap.String("status", string(updated.Status)),
		zap.String("trace_id", requestid.FromContext(ctx)),
	)
	return &dto.DecisionResult{Request: *updated, Approval: *approval}, nil
}

// List returns the requests visible to the viewer with per-status statistics.
// Stats always describe the whole visible set, independent of the status filter and search.
func (s *RequestService) List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) (*dto.RequestListResponse, bool, error) {
	scope, err := viewerScope(actor)
	if err != nil {
		return nil, false, err
	}
	status, err := parseStatusFilter(query.Status)
	if err != nil {
		return nil, false, err
	}
	search := strings.TrimSpace(query.Search)

	items, err := s.repo.List(ctx, models.RequestFilter{StudentID: scope, Status: status})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	items = filterBySearch(items, search, actor.Role.IsStaff())
	if !actor.Role.IsStaff() {
		for i := range items {
			stripOwner(&items[i])
		}
	}

	stats, cacheHit, err := s.stats(ctx, scope)
	if err != nil {
		return nil, false, err
	}

	filter := "all"
	if status != "" {
		filter = string(status)
	}
	return &dto.RequestListResponse{Items: items, Stats: stats, Filter: filter, Search: search}, cacheHit, nil
}

// Get returns a request with its decision history.
func (s *RequestService) Get(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.RequestDetail, error) {
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	approvals, err := s.repo.ListApprovals(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	if approvals == nil {
		approvals = []models.Approval{}
	}
	return &dto.RequestDetail{Request: *req, Approvals: approvals}, nil
}

// Queue returns the requests awaiting the viewer: pending for coordinators, coordinator-approved
// for heads of department, and their own requests for students.
func (s *RequestService) Queue(ctx context.Context, actor *models.JWTClaims) ([]models.Request, error) {
	scope, err := viewerScope(actor)
	if err != nil {
		return nil, err
	}
	filter := models.RequestFilter{StudentID: scope}
	if status, ok := queueStatus(actor.Role); ok {
		filter.Status = status
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue")
	}
	if !actor.Role.IsStaff() {
		for i := range items {
			stripOwner(&items[i])
		}
	}
	return items, nil
}

// AttachmentURL issues a signed, expiring download link for the request's evidence.
func (s *RequestService) AttachmentURL(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.AttachmentLink, error) {
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !req.HasAttachment() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request has no attachment")
	}
	token, expiresAt, err := s.signer.Generate(strconv.FormatInt(id, 10), *req.AttachmentPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign attachment url")
	}
	link := fmt.Sprintf("%s/requests/%d/attachment?token=%s", s.basePath, id, url.QueryEscape(token))
	return &dto.AttachmentLink{URL: link, ExpiresAt: expiresAt}, nil
}

// OpenAttachment validates a signed token and opens the referenced blob.
// The token is the credential; a viewer, when known, must still be allowed to see the request.
func (s *RequestService) OpenAttachment(ctx context.Context, actor *models.JWTClaims, id int64, token string) (*dto.AttachmentFile, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token required")
	}
	resourceID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	if resourceID != strconv.FormatInt(id, 10) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match request")
	}

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if actor != nil && actor.Role == models.RoleStudent && req.StudentID != actor.AccountID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	if !req.HasAttachment() || *req.AttachmentPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}

	file, err := s.blobs.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat attachment")
	}

	ext := filepath.Ext(relPath)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &dto.AttachmentFile{
		Name:        fmt.Sprintf("request-%d%s", id, ext),
		ContentType: contentType,
		ModTime:     info.ModTime(),
		File:        file,
	}, nil
}

func (s *RequestService) load(ctx context.Context, actor *models.JWTClaims, id int64) (*models.Request, error) {
	if _, err := viewerScope(actor); err != nil {
		return nil, err
	}
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if actor.Role == models.RoleStudent {
		if req.StudentID != actor.AccountID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
		}
		stripOwner(req)
	}
	return req, nil
}

// stats serves per-scope counts. Cached counts live under the scope's current generation,
// so counts computed before an invalidation are written to a generation nobody reads.
func (s *RequestService) stats(ctx context.Context, scope string) (models.StatusCounts, bool, error) {
	var (
		counts   models.StatusCounts
		countKey string
	)
	if s.cache != nil {
		if generation, ok := s.statsGeneration(ctx, scope); ok {
			countKey = statsKey(scope) + ":" + generation
			if hit, err := s.cache.Get(ctx, countKey, &counts); err == nil && hit {
				return counts, true, nil
			}
		}
	}
	counts, err := s.repo.CountByStatus(ctx, scope)
	if err != nil {
		return models.StatusCounts{}, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	if countKey != "" {
		_ = s.cache.Set(ctx, countKey, counts, s.statsTTL)
	}
	return counts, false, nil
}

// statsGeneration reports false when the generation cannot be read, which disables caching for the call.
func (s *RequestService) statsGeneration(ctx context.Context, scope string) (string, bool) {
	var generation string
	hit, err := s.cache.Get(ctx, statsGenerationKey(scope), &generation)
	if err != nil {
		return "", false
	}
	if !hit || generation == "" {
		return statsGenerationNil, true
	}
	return generation, true
}

func (s *RequestService) invalidateStats(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	scopes := []string{""}
	if studentID != "" {
		scopes = append(scopes, studentID)
	}
	ttl := statsGenerationTTL
	if s.statsTTL*2 > ttl {
		ttl = s.statsTTL * 2
	}
	for _, scope := range scopes {
		key := statsGenerationKey(scope)
		if err := s.cache.Set(ctx, key, uuid.NewString(), ttl); err != nil {
			s.logger.Warn("failed to invalidate request stats", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *RequestService) storeAttachment(upload *dto.AttachmentUpload) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(upload.Filename)))
	if ext == "" || !s.policy.allows(ext) {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("attachment type not allowed; use one of %s", strings.Join(s.policy.AllowedExtensions, ", ")))
	}
	if upload.Size > s.policy.MaxSizeBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("attachment exceeds %d bytes", s.policy.MaxSizeBytes))
	}

	name := fmt.Sprintf("%s/%s%s", s.now().Format("2006/01"), uuid.NewString(), ext)
	written, err := s.blobs.SaveStream(name, io.LimitReader(upload.Reader, s.policy.MaxSizeBytes+1))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	if written > s.policy.MaxSizeBytes {
		if delErr := s.blobs.Delete(name); delErr != nil {
			s.logger.Warn("failed to remove oversized attachment", zap.String("attachment", name), zap.Error(delErr))
		}
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("attachment exceeds %d bytes", s.policy.MaxSizeBytes))
	}
	return name, nil
}

func (s *RequestService) decisionError(err error) *appErrors.Error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	case errors.Is(err, repository.ErrStatusChanged):
		return appErrors.Clone(appErrors.ErrInvalidTransition, "request was decided concurrently")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
}

// viewerScope returns the student id a viewer is restricted to, or "" for staff.
func viewerScope(actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	switch {
	case actor.Role == models.RoleStudent:
		if actor.AccountID == "" {
			return "", appErrors.ErrUnauthorized
		}
		return actor.AccountID, nil
	case actor.Role.IsStaff():
		return "", nil
	}
	return "", appErrors.ErrForbidden
}

func parseStatusFilter(raw string) (models.RequestStatus, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" || value == "all" {
		return "", nil
	}
	status := models.RequestStatus(value)
	if !status.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status filter %q", raw))
	}
	return status, nil
}

func parseWindowTime(raw string) (time.Time, error) {
	for _, layout := range windowLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time %q", raw)
}

func filterBySearch(items []models.Request, search string, includeOwner bool) []models.Request {
	if search == "" {
		return items
	}
	needle := strings.ToLower(search)
	filtered := make([]models.Request, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Subject), needle) ||
			strings.Contains(strings.ToLower(item.Description), needle) ||
			(includeOwner && strings.Contains(strings.ToLower(item.StudentName), needle)) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func stripOwner(req *models.Request) {
	req.StudentName = ""
	req.StudentDepartment = ""
	req.StudentEmail = ""
}

func statsKey(scope string) string {
	if scope == "" {
		return statsCacheAllKey
	}
	return fmt.Sprintf(statsCacheStudentKey, scope)
}

func statsGenerationKey(scope string) string {
	return statsKey(scope) + ":generation"
}
