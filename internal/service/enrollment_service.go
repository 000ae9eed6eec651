package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
	"github.com/campuskit/attendance-api/internal/repository"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	UpdateDecision(ctx context.Context, id string, status models.EnrollmentStatus, decidedBy string, decidedAt time.Time) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type enrollmentKeyRepository interface {
	FindByKey(ctx context.Context, key string) (*models.EnrollmentKey, error)
	FindByCourse(ctx context.Context, courseID string) (*models.EnrollmentKey, error)
	Create(ctx context.Context, key *models.EnrollmentKey) error
	Rotate(ctx context.Context, courseID, newKey string, expiresAt *time.Time) (*models.EnrollmentKey, error)
}

type enrollmentStudentRepository interface {
	FindByAdmissionNumber(ctx context.Context, admissionNumber string) (*models.Student, error)
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	IsLecturer(ctx context.Context, courseID, userID string) (bool, error)
}

// EnrollmentConfig governs key issuance. Zero KeyTTL issues non-expiring keys.
type EnrollmentConfig struct {
	KeyTTL time.Duration
}

// EnrollmentService implements the enrollment key workflow.
type EnrollmentService struct {
	enrollments enrollmentRepository
	keys        enrollmentKeyRepository
	students    enrollmentStudentRepository
	courses     enrollmentCourseRepository
	validator   *validator.Validate
	logger      *zap.Logger
	config      EnrollmentConfig
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(enrollments enrollmentRepository, keys enrollmentKeyRepository, students enrollmentStudentRepository, courses enrollmentCourseRepository, validate *validator.Validate, logger *zap.Logger, config EnrollmentConfig) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		keys:        keys,
		students:    students,
		courses:     courses,
		validator:   validate,
		logger:      logger,
		config:      config,
	}
}

// Request processes a self-enrollment by key. Repeat requests for the same
// (student, course) pair are idempotent: they report the existing status
// instead of failing, including after a rejection.
func (s *EnrollmentService) Request(ctx context.Context, req models.EnrollRequest) (*models.EnrollResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid enrollment payload")
	}

	key, err := s.keys.FindByKey(ctx, req.EnrollmentKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrInvalidKey, "")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to resolve enrollment key")
	}
	if key.ExpiresAt != nil && time.Now().UTC().After(*key.ExpiresAt) {
		return nil, apperrors.Clone(apperrors.ErrExpiredKey, "")
	}

	// Self-enrollment requires a known admission number; unlike attendance
	// submission there is no lazy student creation here.
	student, err := s.students.FindByAdmissionNumber(ctx, req.AdmissionNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "student not found, contact administration")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load student")
	}

	course, err := s.courses.FindByID(ctx, key.CourseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load course")
	}

	if existing, err := s.enrollments.FindByStudentAndCourse(ctx, student.AdmissionNumber, course.ID); err == nil {
		return &models.EnrollResponse{
			EnrollmentID: existing.ID,
			CourseCode:   course.Code,
			CourseTitle:  course.Title,
			Status:       existing.Status,
			AlreadyKnown: true,
		}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to check enrollment")
	}

	enrollment := &models.Enrollment{
		StudentID: student.AdmissionNumber,
		CourseID:  course.ID,
		Status:    models.EnrollmentStatusPending,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			// Lost a race with a concurrent identical request.
			existing, ferr := s.enrollments.FindByStudentAndCourse(ctx, student.AdmissionNumber, course.ID)
			if ferr != nil {
				return nil, apperrors.Wrap(ferr, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to reread enrollment")
			}
			return &models.EnrollResponse{
				EnrollmentID: existing.ID,
				CourseCode:   course.Code,
				CourseTitle:  course.Title,
				Status:       existing.Status,
				AlreadyKnown: true,
			}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to create enrollment")
	}

	return &models.EnrollResponse{
		EnrollmentID: enrollment.ID,
		CourseCode:   course.Code,
		CourseTitle:  course.Title,
		Status:       enrollment.Status,
	}, nil
}

// Decide approves or rejects a pending enrollment. Decisions are final: a
// second decision on the same enrollment returns CONFLICT.
func (s *EnrollmentService) Decide(ctx context.Context, enrollmentID string, req models.EnrollmentDecisionRequest, actor *models.JWTClaims) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid decision payload")
	}

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "enrollment not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.authorizeCourse(ctx, enrollment.CourseID, actor); err != nil {
		return nil, err
	}

	status := models.EnrollmentStatusApproved
	if req.Decision == "reject" {
		status = models.EnrollmentStatusRejected
	}

	decidedAt := time.Now().UTC()
	if err := s.enrollments.UpdateDecision(ctx, enrollment.ID, status, actor.UserID, decidedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrConflict, "enrollment has already been decided")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to decide enrollment")
	}

	enrollment.Status = status
	enrollment.DecidedAt = &decidedAt
	enrollment.DecidedBy = &actor.UserID
	return enrollment, nil
}

// List returns enrollments visible to the actor.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, actor *models.JWTClaims) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if actor.Role == models.RoleFaculty && filter.CourseID != "" {
		if err := s.authorizeCourse(ctx, filter.CourseID, actor); err != nil {
			return nil, nil, err
		}
	}
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetKey returns the course's live enrollment key, issuing one on first use.
func (s *EnrollmentService) GetKey(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.EnrollmentKey, error) {
	if err := s.authorizeCourse(ctx, courseID, actor); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "course not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load course")
	}

	key, err := s.keys.FindByCourse(ctx, courseID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load enrollment key")
	}

	fresh := &models.EnrollmentKey{
		CourseID:  courseID,
		Key:       generateEnrollmentKey(),
		ExpiresAt: s.keyExpiry(),
		CreatedBy: actor.UserID,
	}
	if err := s.keys.Create(ctx, fresh); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to issue enrollment key")
	}
	return fresh, nil
}

// RegenerateKey rotates the course key. The previous key stops working
// immediately; approved enrollments are unaffected.
func (s *EnrollmentService) RegenerateKey(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.EnrollmentKey, error) {
	if err := s.authorizeCourse(ctx, courseID, actor); err != nil {
		return nil, err
	}

	rotated, err := s.keys.Rotate(ctx, courseID, generateEnrollmentKey(), s.keyExpiry())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No key issued yet; regeneration degrades to first issuance.
			return s.GetKey(ctx, courseID, actor)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to rotate enrollment key")
	}
	s.logger.Info("enrollment key rotated", zap.String("course_id", courseID), zap.String("actor", actor.UserID))
	return rotated, nil
}

func (s *EnrollmentService) keyExpiry() *time.Time {
	if s.config.KeyTTL <= 0 {
		return nil
	}
	expires := time.Now().UTC().Add(s.config.KeyTTL)
	return &expires
}

func (s *EnrollmentService) authorizeCourse(ctx context.Context, courseID string, actor *models.JWTClaims) error {
	if actor == nil {
		return apperrors.Clone(apperrors.ErrUnauthorized, "")
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	ok, err := s.courses.IsLecturer(ctx, courseID, actor.UserID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to check course access")
	}
	if !ok {
		return apperrors.Clone(apperrors.ErrForbidden, "you are not assigned to this course")
	}
	return nil
}

// generateEnrollmentKey returns a 32-hex-character random token.
func generateEnrollmentKey() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
