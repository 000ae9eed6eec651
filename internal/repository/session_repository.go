package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/attendance-api/internal/models"
)

// SessionRepository handles persistence of class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, course_id, faculty_id, session_key, title, date, start_time, end_time, latitude, longitude, allowed_radius, is_active, created_at`

// Create persists a new session with a fresh opaque key.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.SessionKey == "" {
		session.SessionKey = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, course_id, faculty_id, session_key, title, date, start_time, end_time, latitude, longitude, allowed_radius, is_active, created_at)
        VALUES (:id, :course_id, :faculty_id, :session_key, :title, :date, :start_time, :end_time, :latitude, :longitude, :allowed_radius, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by its internal ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActiveByKey resolves a session by its public key, restricted to
// administratively active sessions. Inactive sessions are indistinguishable
// from absent ones by design.
func (r *SessionRepository) FindActiveByKey(ctx context.Context, key string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE session_key = $1 AND is_active = TRUE`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, key); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindDetailByID returns a session with course context and attendance count.
func (r *SessionRepository) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	const query = `SELECT s.id, s.course_id, s.faculty_id, s.session_key, s.title, s.date, s.start_time, s.end_time,
        s.latitude, s.longitude, s.allowed_radius, s.is_active, s.created_at,
        c.code AS course_code, c.title AS course_title, u.full_name AS faculty_name,
        (SELECT COUNT(*) FROM attendance_records ar WHERE ar.session_id = s.id) AS attendance_count
        FROM sessions s
        JOIN courses c ON c.id = s.course_id
        JOIN users u ON u.id = s.faculty_id
        WHERE s.id = $1`
	var detail models.SessionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns sessions filtered by the provided criteria, newest first.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
	base := `FROM sessions s
JOIN courses c ON c.id = s.course_id
JOIN users u ON u.id = s.faculty_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.CourseCode != "" {
		conditions = append(conditions, fmt.Sprintf("c.code = $%d", len(args)+1))
		args = append(args, filter.CourseCode)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("s.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("s.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("s.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "s.is_active = TRUE")
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.faculty_id, s.session_key, s.title, s.date, s.start_time, s.end_time,
        s.latitude, s.longitude, s.allowed_radius, s.is_active, s.created_at,
        c.code AS course_code, c.title AS course_title, u.full_name AS faculty_name,
        (SELECT COUNT(*) FROM attendance_records ar WHERE ar.session_id = s.id) AS attendance_count
        %s ORDER BY s.date DESC, s.start_time DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// Update mutates the editable fields of a session.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	const query = `UPDATE sessions SET title = :title, date = :date, start_time = :start_time, end_time = :end_time,
        latitude = :latitude, longitude = :longitude, allowed_radius = :allowed_radius, is_active = :is_active
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a session; attendance records cascade.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateEnded flips the kill-switch on sessions whose time window has
// passed. Idempotent; called from the scheduled sweep, never from a read
// path. date/timeOfDay are the current instant in the configured zone.
func (r *SessionRepository) DeactivateEnded(ctx context.Context, date time.Time, timeOfDay string) (int64, error) {
	const query = `UPDATE sessions SET is_active = FALSE
        WHERE is_active = TRUE AND (date < $1 OR (date = $1 AND end_time < $2))`
	res, err := r.db.ExecContext(ctx, query, date, timeOfDay)
	if err != nil {
		return 0, fmt.Errorf("deactivate ended sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate ended sessions: %w", err)
	}
	return n, nil
}
