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

// CourseRepository handles persistence of courses and lecturer assignments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ErrCourseCodeTaken signals the unique course code constraint fired.
var ErrCourseCodeTaken = fmt.Errorf("course code already exists")

// Create persists a new course. The code uniqueness is enforced by the
// storage constraint and surfaced as ErrCourseCodeTaken.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, title, description, created_at, updated_at)
        VALUES (:id, :code, :title, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrCourseCodeTaken
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, title, description, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	const query = `SELECT id, code, title, description, created_at, updated_at FROM courses WHERE code = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses c"
	var conditions []string
	var args []interface{}

	if filter.LecturerID != "" {
		base += " JOIN course_lecturers cl ON cl.course_id = c.id"
		conditions = append(conditions, fmt.Sprintf("cl.user_id = $%d", len(args)+1))
		args = append(args, filter.LecturerID)
	}
	if filter.Code != "" {
		conditions = append(conditions, fmt.Sprintf("c.code = $%d", len(args)+1))
		args = append(args, filter.Code)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.code ILIKE $%d OR c.title ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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

	query := fmt.Sprintf(`SELECT c.id, c.code, c.title, c.description, c.created_at, c.updated_at
        %s%s ORDER BY c.code ASC LIMIT %d OFFSET %d`, base, clause, size, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", base, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Update mutates title and description.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = $2, description = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, course.ID, course.Title, course.Description, course.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course. Sessions, enrollments and keys cascade.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AssignLecturer links a faculty user to a course. Idempotent.
func (r *CourseRepository) AssignLecturer(ctx context.Context, courseID, userID string) error {
	const query = `INSERT INTO course_lecturers (course_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, courseID, userID); err != nil {
		return fmt.Errorf("assign lecturer: %w", err)
	}
	return nil
}

// RemoveLecturer unlinks a faculty user from a course.
func (r *CourseRepository) RemoveLecturer(ctx context.Context, courseID, userID string) error {
	const query = `DELETE FROM course_lecturers WHERE course_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, courseID, userID); err != nil {
		return fmt.Errorf("remove lecturer: %w", err)
	}
	return nil
}

// Lecturers returns the faculty assigned to a course.
func (r *CourseRepository) Lecturers(ctx context.Context, courseID string) ([]models.User, error) {
	const query = `SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.department, u.active, u.last_login, u.created_at, u.updated_at
        FROM users u JOIN course_lecturers cl ON cl.user_id = u.id
        WHERE cl.course_id = $1 ORDER BY u.full_name ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, courseID); err != nil {
		return nil, fmt.Errorf("list course lecturers: %w", err)
	}
	return users, nil
}

// IsLecturer reports whether the user teaches the course.
func (r *CourseRepository) IsLecturer(ctx context.Context, courseID, userID string) (bool, error) {
	const query = `SELECT 1 FROM course_lecturers WHERE course_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check lecturer: %w", err)
	}
	return true, nil
}
