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

// EnrollmentKeyRepository handles persistence of per-course enrollment keys.
type EnrollmentKeyRepository struct {
	db *sqlx.DB
}

// NewEnrollmentKeyRepository constructs the repository.
func NewEnrollmentKeyRepository(db *sqlx.DB) *EnrollmentKeyRepository {
	return &EnrollmentKeyRepository{db: db}
}

const enrollmentKeyColumns = `id, course_id, key, previous_key, expires_at, regenerated_at, created_by, created_at, updated_at`

// FindByKey resolves a key by its exact secret value.
func (r *EnrollmentKeyRepository) FindByKey(ctx context.Context, key string) (*models.EnrollmentKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_keys WHERE key = $1`, enrollmentKeyColumns)
	var stored models.EnrollmentKey
	if err := r.db.GetContext(ctx, &stored, query, key); err != nil {
		return nil, err
	}
	return &stored, nil
}

// FindByCourse returns the live key for a course. One-to-one by constraint.
func (r *EnrollmentKeyRepository) FindByCourse(ctx context.Context, courseID string) (*models.EnrollmentKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_keys WHERE course_id = $1`, enrollmentKeyColumns)
	var stored models.EnrollmentKey
	if err := r.db.GetContext(ctx, &stored, query, courseID); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Create issues the first key for a course.
func (r *EnrollmentKeyRepository) Create(ctx context.Context, key *models.EnrollmentKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now
	const query = `INSERT INTO enrollment_keys (id, course_id, key, previous_key, expires_at, regenerated_at, created_by, created_at, updated_at)
        VALUES (:id, :course_id, :key, :previous_key, :expires_at, :regenerated_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, key); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("course already has an enrollment key")
		}
		return fmt.Errorf("create enrollment key: %w", err)
	}
	return nil
}

// Rotate swaps in a new secret, archiving the old one. Approved enrollments
// are untouched: the key gates requests, it is not an ongoing credential.
func (r *EnrollmentKeyRepository) Rotate(ctx context.Context, courseID, newKey string, expiresAt *time.Time) (*models.EnrollmentKey, error) {
	query := fmt.Sprintf(`UPDATE enrollment_keys
        SET previous_key = key, key = $2, expires_at = $3, regenerated_at = NOW(), updated_at = NOW()
        WHERE course_id = $1
        RETURNING %s`, enrollmentKeyColumns)
	var rotated models.EnrollmentKey
	if err := r.db.GetContext(ctx, &rotated, query, courseID, newKey, expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("rotate enrollment key: %w", err)
	}
	return &rotated, nil
}
