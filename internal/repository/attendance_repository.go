package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/attendance-api/internal/models"
)

// ErrDuplicateAttendance signals the (session, student) unique constraint fired.
var ErrDuplicateAttendance = fmt.Errorf("attendance already recorded")

// AttendanceRepository handles persistence of attendance records. Records
// are append-only: there is no update path.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a new attendance record. The unique constraint on
// (session_id, student_id) is the authoritative duplicate guard; the
// violation maps to ErrDuplicateAttendance so near-simultaneous submissions
// cannot both land.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, session_id, student_id, submitted_at, ip_address, latitude, longitude, is_verified, verification_method, distance_meters, flagged, flag_reason)
        VALUES (:id, :session_id, :student_id, :submitted_at, :ip_address, :latitude, :longitude, :is_verified, :verification_method, :distance_meters, :flagged, :flag_reason)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttendance
		}
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// ExistsForStudent reports whether the student already submitted for the session.
func (r *AttendanceRepository) ExistsForStudent(ctx context.Context, sessionID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, sessionID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return true, nil
}

// ExistsForIP reports whether the address already submitted for the session.
func (r *AttendanceRepository) ExistsForIP(ctx context.Context, sessionID, ip string) (bool, error) {
	const query = `SELECT 1 FROM attendance_records WHERE session_id = $1 AND ip_address = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, sessionID, ip); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check attendance by ip: %w", err)
	}
	return true, nil
}

// SessionReport returns the per-student report rows for a session.
func (r *AttendanceRepository) SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error) {
	const query = `SELECT ar.student_id, s.first_name AS student_first_name, s.last_name AS student_last_name,
        ar.submitted_at, ar.is_verified, ar.verification_method, ar.distance_meters, ar.flagged, ar.flag_reason
        FROM attendance_records ar
        JOIN students s ON s.admission_number = ar.student_id
        WHERE ar.session_id = $1 ORDER BY ar.submitted_at ASC`
	var rows []models.SessionReportRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("session report: %w", err)
	}
	return rows, nil
}

// StudentHistory returns a student's attendance across courses, optionally
// scoped to one course.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID, courseID string) ([]models.StudentAttendanceRow, error) {
	query := `SELECT c.code AS course_code, c.title AS course_title, se.title AS session_title,
        se.date AS session_date, ar.submitted_at, ar.is_verified
        FROM attendance_records ar
        JOIN sessions se ON se.id = ar.session_id
        JOIN courses c ON c.id = se.course_id
        WHERE ar.student_id = $1`
	args := []interface{}{studentID}
	if courseID != "" {
		query += " AND se.course_id = $2"
		args = append(args, courseID)
	}
	query += " ORDER BY se.date DESC, ar.submitted_at DESC"

	var rows []models.StudentAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return rows, nil
}

// CountBySession returns total and verified submission counts.
func (r *AttendanceRepository) CountBySession(ctx context.Context, sessionID string) (total int, verified int, err error) {
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_verified) AS verified
        FROM attendance_records WHERE session_id = $1`
	row := struct {
		Total    int `db:"total"`
		Verified int `db:"verified"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		return 0, 0, fmt.Errorf("count attendance: %w", err)
	}
	return row.Total, row.Verified, nil
}
