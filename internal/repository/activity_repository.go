package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/attendance-api/internal/models"
)

// ActivityRepository handles persistence of activity and import logs.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// CreateLog inserts one activity log entry.
func (r *ActivityRepository) CreateLog(ctx context.Context, log *models.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, actor_id, action, object_type, object_id, details, ip_address, created_at)
        VALUES (:id, :actor_id, :action, :object_type, :object_id, :details, :ip_address, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// ListLogs returns activity logs filtered by the provided criteria, newest first.
func (r *ActivityRepository) ListLogs(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, int, error) {
	var conditions []string
	var args []interface{}

	if filter.ActorID != "" {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)+1))
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.ObjectType != "" {
		conditions = append(conditions, fmt.Sprintf("object_type = $%d", len(args)+1))
		args = append(args, filter.ObjectType)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, actor_id, action, object_type, object_id, details, ip_address, created_at
        FROM activity_logs%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, size, offset)
	var logs []models.ActivityLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM activity_logs" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}
	return logs, total, nil
}

// CreateImportLog inserts a student import log row.
func (r *ActivityRepository) CreateImportLog(ctx context.Context, log *models.StudentImportLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_import_logs (id, admin_id, filename, status, records_total, records_imported, records_failed, error_log, created_at)
        VALUES (:id, :admin_id, :filename, :status, :records_total, :records_imported, :records_failed, :error_log, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create import log: %w", err)
	}
	return nil
}

// UpdateImportLog records the final outcome of an import.
func (r *ActivityRepository) UpdateImportLog(ctx context.Context, log *models.StudentImportLog) error {
	const query = `UPDATE student_import_logs SET status = :status, records_total = :records_total,
        records_imported = :records_imported, records_failed = :records_failed, error_log = :error_log
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("update import log: %w", err)
	}
	return nil
}

// RecentImports returns the latest import logs.
func (r *ActivityRepository) RecentImports(ctx context.Context, limit int) ([]models.StudentImportLog, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT id, admin_id, filename, status, records_total, records_imported, records_failed, error_log, created_at
        FROM student_import_logs ORDER BY created_at DESC LIMIT %d`, limit)
	var logs []models.StudentImportLog
	if err := r.db.SelectContext(ctx, &logs, query); err != nil {
		return nil, fmt.Errorf("list import logs: %w", err)
	}
	return logs, nil
}
