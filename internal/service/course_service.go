package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
	"github.com/campuskit/attendance-api/internal/repository"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	AssignLecturer(ctx context.Context, courseID, userID string) error
	RemoveLecturer(ctx context.Context, courseID, userID string) error
	Lecturers(ctx context.Context, courseID string) ([]models.User, error)
}

type courseUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseService manages courses and lecturer assignments.
type CourseService struct {
	repo      courseRepository
	users     courseUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, users courseUserRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, users: users, validator: validate, logger: logger}
}

// Create registers a new course with a unique code.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrCourseCodeTaken) {
			return nil, apperrors.Clone(apperrors.ErrConflict, "course code already exists")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Get returns a course with its lecturers.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "course not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load course")
	}

	lecturers, err := s.repo.Lecturers(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list lecturers")
	}

	detail := &models.CourseDetail{Course: *course, Lecturers: make([]models.UserInfo, 0, len(lecturers))}
	for _, lecturer := range lecturers {
		detail.Lecturers = append(detail.Lecturers, models.UserInfo{
			ID:       lecturer.ID,
			Email:    lecturer.Email,
			FullName: lecturer.FullName,
			Role:     lecturer.Role,
		})
	}
	return detail, nil
}

// List returns courses. Faculty see only courses they are assigned to.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter, actor *models.JWTClaims) ([]models.Course, *models.Pagination, error) {
	if actor != nil && actor.Role == models.RoleFaculty {
		filter.LecturerID = actor.UserID
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update mutates title and description. The code is immutable: sessions and
// exports reference it.
func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "course not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load course")
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course and everything hanging off it.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "course not found")
		}
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// AssignLecturer links a faculty user to a course.
func (s *CourseService) AssignLecturer(ctx context.Context, courseID string, req models.AssignLecturerRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid assignment payload")
	}

	if _, err := s.repo.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "course not found")
		}
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load course")
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "user not found")
		}
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != models.RoleFaculty && user.Role != models.RoleAdmin {
		return apperrors.Clone(apperrors.ErrValidation, "only faculty can be assigned to courses")
	}

	if err := s.repo.AssignLecturer(ctx, courseID, req.UserID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to assign lecturer")
	}
	return nil
}

// RemoveLecturer unlinks a faculty user from a course.
func (s *CourseService) RemoveLecturer(ctx context.Context, courseID, userID string) error {
	if err := s.repo.RemoveLecturer(ctx, courseID, userID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to remove lecturer")
	}
	return nil
}
