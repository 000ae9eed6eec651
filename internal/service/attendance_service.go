package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
	"github.com/campuskit/attendance-api/internal/repository"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
	"github.com/campuskit/attendance-api/pkg/geo"
)

type attendanceSessionRepository interface {
	FindActiveByKey(ctx context.Context, key string) (*models.Session, error)
}

type attendanceStudentRepository interface {
	FindByAdmissionNumber(ctx context.Context, admissionNumber string) (*models.Student, error)
	GetOrCreate(ctx context.Context, admissionNumber string) (*models.Student, bool, error)
}

type attendanceEnrollmentRepository interface {
	ApprovedExists(ctx context.Context, studentID, courseID string) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type attendanceRecordRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	ExistsForStudent(ctx context.Context, sessionID, studentID string) (bool, error)
	ExistsForIP(ctx context.Context, sessionID, ip string) (bool, error)
	StudentHistory(ctx context.Context, studentID, courseID string) ([]models.StudentAttendanceRow, error)
}

type sessionStatusResolver interface {
	Status(session *models.Session, now time.Time) models.SessionStatus
}

type submissionMetrics interface {
	RecordSubmission(outcome string)
}

// AttendancePolicy holds the submission policy toggles.
type AttendancePolicy struct {
	EnforceIPUnique bool
	GeofenceEnabled bool
}

// AttendanceService implements the public submission flow.
type AttendanceService struct {
	sessions    attendanceSessionRepository
	students    attendanceStudentRepository
	enrollments attendanceEnrollmentRepository
	records     attendanceRecordRepository
	status      sessionStatusResolver
	metrics     submissionMetrics
	validator   *validator.Validate
	logger      *zap.Logger
	policy      AttendancePolicy
}

// NewAttendanceService constructs an AttendanceService. metrics may be nil.
func NewAttendanceService(sessions attendanceSessionRepository, students attendanceStudentRepository, enrollments attendanceEnrollmentRepository, records attendanceRecordRepository, status sessionStatusResolver, metrics submissionMetrics, validate *validator.Validate, logger *zap.Logger, policy AttendancePolicy) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceService{
		sessions:    sessions,
		students:    students,
		enrollments: enrollments,
		records:     records,
		status:      status,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		policy:      policy,
	}
}

// Submit runs the full submission sequence for one QR scan. Checks fail
// fast in a fixed order; on success exactly one record is inserted, on any
// failure none. The storage unique constraint backs the duplicate check, so
// two near-simultaneous submissions cannot both land.
func (s *AttendanceService) Submit(ctx context.Context, sessionKey string, req models.SubmitAttendanceRequest) (*models.SubmitAttendanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid submission payload")
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, apperrors.Clone(apperrors.ErrValidation, "latitude and longitude must be provided together")
	}

	// Inactive sessions resolve exactly like absent ones.
	session, err := s.sessions.FindActiveByKey(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.reject(apperrors.Clone(apperrors.ErrNotFound, "session not found or not accepting submissions"))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load session")
	}

	if s.status.Status(session, time.Now()) == models.SessionStatusEnded {
		return nil, s.reject(apperrors.Clone(apperrors.ErrSessionEnded, ""))
	}

	student, created, err := s.students.GetOrCreate(ctx, req.AdmissionNumber)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to resolve student")
	}
	if created {
		s.logger.Info("created student record on first submission", zap.String("admission_number", student.AdmissionNumber))
	}

	approved, err := s.enrollments.ApprovedExists(ctx, student.AdmissionNumber, session.CourseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !approved {
		return nil, s.reject(apperrors.Clone(apperrors.ErrNotEnrolled, ""))
	}

	exists, err := s.records.ExistsForStudent(ctx, session.ID, student.AdmissionNumber)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to check prior submission")
	}
	if exists {
		return nil, s.reject(apperrors.Clone(apperrors.ErrDuplicateSubmission, ""))
	}

	if s.policy.EnforceIPUnique && req.IP != "" {
		used, err := s.records.ExistsForIP(ctx, session.ID, req.IP)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to check device usage")
		}
		if used {
			return nil, s.reject(apperrors.Clone(apperrors.ErrDuplicateDevice, ""))
		}
	}

	record := &models.AttendanceRecord{
		SessionID:          session.ID,
		StudentID:          student.AdmissionNumber,
		SubmittedAt:        time.Now().UTC(),
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		IsVerified:         true,
		VerificationMethod: models.VerificationMethodNone,
	}
	if req.IP != "" {
		record.IPAddress = &req.IP
	}

	// Out-of-radius submissions are recorded but flagged, never rejected:
	// GPS noise should not cost a present student their attendance.
	if s.policy.GeofenceEnabled && session.Geofenced() {
		if req.Latitude != nil && req.Longitude != nil {
			result := geo.Verify(*req.Latitude, *req.Longitude, *session.Latitude, *session.Longitude, float64(session.AllowedRadius))
			record.VerificationMethod = models.VerificationMethodGPS
			record.DistanceMeters = &result.DistanceMeters
			record.IsVerified = result.WithinRadius
			if !result.WithinRadius {
				record.Flagged = true
				record.FlagReason = "outside allowed radius"
			}
		} else {
			record.IsVerified = false
			record.Flagged = true
			record.FlagReason = "no location provided"
		}
	}

	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttendance) {
			return nil, s.reject(apperrors.Clone(apperrors.ErrDuplicateSubmission, ""))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to record attendance")
	}

	if s.metrics != nil {
		outcome := "verified"
		if record.Flagged {
			outcome = "flagged"
		}
		s.metrics.RecordSubmission(outcome)
	}

	return &models.SubmitAttendanceResponse{
		RecordID:       record.ID,
		SessionTitle:   session.Title,
		SubmittedAt:    record.SubmittedAt,
		IsVerified:     record.IsVerified,
		Flagged:        record.Flagged,
		FlagReason:     record.FlagReason,
		DistanceMeters: record.DistanceMeters,
	}, nil
}

// Lookup returns a student's enrollments and attendance records. Public
// self-service endpoint keyed by admission number.
func (s *AttendanceService) Lookup(ctx context.Context, req models.AttendanceLookupRequest) (*models.AttendanceLookupResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid lookup payload")
	}

	student, err := s.students.FindByAdmissionNumber(ctx, req.AdmissionNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "student not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load student")
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, student.AdmissionNumber)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list enrollments")
	}
	records, err := s.records.StudentHistory(ctx, student.AdmissionNumber, req.CourseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list attendance")
	}

	return &models.AttendanceLookupResponse{
		Student:     *student,
		Enrollments: enrollments,
		Records:     records,
	}, nil
}

func (s *AttendanceService) reject(err *apperrors.Error) error {
	if s.metrics != nil {
		s.metrics.RecordSubmission("rejected")
	}
	return err
}
