package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-approval-api/pkg/jobs"
)

// Maintenance job types.
const (
	JobTypeSweepAttachments = "sweep_attachments"
	JobTypePurgeTokens      = "purge_refresh_tokens"
)

type attachmentPathSource interface {
	ListAttachmentPaths(ctx context.Context) ([]string, error)
}

type blobSweeper interface {
	SweepOlderThan(ttl time.Duration, keep func(name string) bool) ([]string, error)
}

type refreshTokenPurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// MaintenanceService removes attachments no request references and expired refresh tokens.
type MaintenanceService struct {
	requests attachmentPathSource
	blobs    blobSweeper
	tokens   refreshTokenPurger
	metrics  *MetricsService
	grace    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewMaintenanceService builds the service. Blobs younger than grace are never swept, which
// protects uploads whose request row is still being written.
func NewMaintenanceService(requests attachmentPathSource, blobs blobSweeper, tokens refreshTokenPurger, metrics *MetricsService, grace time.Duration, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	return &MaintenanceService{
		requests: requests,
		blobs:    blobs,
		tokens:   tokens,
		metrics:  metrics,
		grace:    grace,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Schedule registers a cron entry that enqueues both maintenance jobs.
func (s *MaintenanceService) Schedule(scheduler *cron.Cron, spec string, queue jobEnqueuer) (cron.EntryID, error) {
	return scheduler.AddFunc(spec, func() {
		for _, jobType := range []string{JobTypeSweepAttachments, JobTypePurgeTokens} {
			err := queue.Enqueue(jobs.Job{Type: jobType, Key: jobType})
			switch {
			case errors.Is(err, jobs.ErrDuplicateJob):
				s.logger.Debug("maintenance job still pending", zap.String("type", jobType))
			case err != nil:
				s.logger.Warn("failed to enqueue maintenance job", zap.String("type", jobType), zap.Error(err))
			}
		}
	})
}

// Handle is the jobs.Handler for the maintenance queue.
func (s *MaintenanceService) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeSweepAttachments:
		_, err := s.SweepAttachments(ctx)
		return err
	case JobTypePurgeTokens:
		_, err := s.PurgeRefreshTokens(ctx)
		return err
	}
	return fmt.Errorf("unknown maintenance job type %q", job.Type)
}

// SweepAttachments deletes stored blobs that are older than the grace period and not referenced by any request.
func (s *MaintenanceService) SweepAttachments(ctx context.Context) ([]string, error) {
	paths, err := s.requests.ListAttachmentPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attachment paths: %w", err)
	}
	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		referenced[p] = struct{}{}
	}

	removed, err := s.blobs.SweepOlderThan(s.grace, func(name string) bool {
		_, ok := referenced[name]
		return ok
	})
	s.metrics.RecordSweep(len(removed))
	if err != nil {
		return removed, fmt.Errorf("sweep attachments: %w", err)
	}
	if len(removed) > 0 {
		s.logger.Info("orphaned attachments removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// PurgeRefreshTokens deletes refresh tokens that expired before now.
func (s *MaintenanceService) PurgeRefreshTokens(ctx context.Context) (int64, error) {
	deleted, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("expired refresh tokens purged", zap.Int64("count", deleted))
	}
	return deleted, nil
}
