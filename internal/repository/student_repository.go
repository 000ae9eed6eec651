package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campuskit/attendance-api/internal/models"
)

// StudentRepository handles persistence of students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByAdmissionNumber returns a student by the campus identifier.
func (r *StudentRepository) FindByAdmissionNumber(ctx context.Context, admissionNumber string) (*models.Student, error) {
	const query = `SELECT admission_number, first_name, last_name, created_at FROM students WHERE admission_number = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, admissionNumber); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student row.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (admission_number, first_name, last_name, created_at)
        VALUES (:admission_number, :first_name, :last_name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("student %s already exists", student.AdmissionNumber)
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// GetOrCreate resolves a student, lazily inserting a blank-named row when
// none exists. The insert races with concurrent submissions for the same
// admission number, so a unique violation falls back to a re-read.
func (r *StudentRepository) GetOrCreate(ctx context.Context, admissionNumber string) (*models.Student, bool, error) {
	student, err := r.FindByAdmissionNumber(ctx, admissionNumber)
	if err == nil {
		return student, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("find student: %w", err)
	}

	fresh := &models.Student{AdmissionNumber: admissionNumber, CreatedAt: time.Now().UTC()}
	const query = `INSERT INTO students (admission_number, first_name, last_name, created_at)
        VALUES ($1, '', '', $2)`
	if _, err := r.db.ExecContext(ctx, query, admissionNumber, fresh.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			existing, ferr := r.FindByAdmissionNumber(ctx, admissionNumber)
			if ferr != nil {
				return nil, false, fmt.Errorf("reread student after race: %w", ferr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create student: %w", err)
	}
	return fresh, true, nil
}

// Upsert creates or updates a student by admission number. Used by CSV
// import (update-or-create semantics).
func (r *StudentRepository) Upsert(ctx context.Context, student *models.Student) error {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (admission_number, first_name, last_name, created_at)
        VALUES (:admission_number, :first_name, :last_name, :created_at)
        ON CONFLICT (admission_number) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// Update mutates the name fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET first_name = $2, last_name = $3 WHERE admission_number = $1`
	res, err := r.db.ExecContext(ctx, query, student.AdmissionNumber, student.FirstName, student.LastName)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a student; attendance records and enrollments cascade.
func (r *StudentRepository) Delete(ctx context.Context, admissionNumber string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE admission_number = $1`, admissionNumber)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns students filtered by the provided criteria.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(admission_number ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
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

	query := fmt.Sprintf(`SELECT admission_number, first_name, last_name, created_at FROM students%s
        ORDER BY admission_number ASC LIMIT %d OFFSET %d`, clause, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM students" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// All returns every student ordered by admission number, for CSV export.
func (r *StudentRepository) All(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT admission_number, first_name, last_name, created_at FROM students ORDER BY admission_number ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}
