package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
	"github.com/campuskit/attendance-api/pkg/jobs"
)

type activityRepository interface {
	CreateLog(ctx context.Context, log *models.ActivityLog) error
	ListLogs(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, int, error)
	RecentImports(ctx context.Context, limit int) ([]models.StudentImportLog, error)
}

// ActivityService records audit trail entries off the request path: writes
// go through a worker queue so a slow insert never delays a response.
type ActivityService struct {
	repo   activityRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewActivityService constructs an ActivityService and its write queue.
// Call Start before recording and Stop on shutdown.
func NewActivityService(repo activityRepository, logger *zap.Logger, workers, bufferSize int) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ActivityService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("activity-log", s.handle, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: bufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *ActivityService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *ActivityService) Stop() {
	s.queue.Stop()
}

// Record enqueues one activity entry. Best effort: a full queue is logged
// and dropped rather than blocking the caller.
func (s *ActivityService) Record(log models.ActivityLog) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "activity-log",
		Payload: log,
	})
	if err != nil {
		s.logger.Warn("dropping activity log entry", zap.String("action", log.Action), zap.Error(err))
	}
}

// List returns activity logs for admins.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, *models.Pagination, error) {
	logs, total, err := s.repo.ListLogs(ctx, filter)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list activity logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RecentImports returns the latest student import logs.
func (s *ActivityService) RecentImports(ctx context.Context, limit int) ([]models.StudentImportLog, error) {
	imports, err := s.repo.RecentImports(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list import logs")
	}
	return imports, nil
}

func (s *ActivityService) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(models.ActivityLog)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return s.repo.CreateLog(ctx, &log)
}
