package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
	"github.com/campuskit/attendance-api/pkg/export"
	"github.com/campuskit/attendance-api/pkg/qr"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActiveByKey(ctx context.Context, key string) (*models.Session, error)
	FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	DeactivateEnded(ctx context.Context, date time.Time, timeOfDay string) (int64, error)
}

type sessionCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	IsLecturer(ctx context.Context, courseID, userID string) (bool, error)
}

type sessionReportRepository interface {
	SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error)
	CountBySession(ctx context.Context, sessionID string) (int, int, error)
}

type sessionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SessionConfig carries the time and URL policy for sessions.
type SessionConfig struct {
	// Timezone is the IANA zone session wall-clock times are interpreted in.
	Timezone string
	// PublicBaseURL is the externally reachable origin embedded in QR payloads.
	PublicBaseURL string
	CacheTTL      time.Duration
}

// SessionService manages session lifecycle, QR payloads and reports.
type SessionService struct {
	repo       sessionRepository
	courses    sessionCourseRepository
	attendance sessionReportRepository
	cache      sessionCache
	validator  *validator.Validate
	logger     *zap.Logger
	config     SessionConfig
	location   *time.Location
	encoder    *qr.Encoder
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
}

// NewSessionService constructs a SessionService. cache may be nil, in which
// case every mark-context lookup hits the database.
func NewSessionService(repo sessionRepository, courses sessionCourseRepository, attendance sessionReportRepository, cache sessionCache, validate *validator.Validate, logger *zap.Logger, config SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		logger.Warn("unknown sessions timezone, falling back to UTC", zap.String("timezone", config.Timezone), zap.Error(err))
		loc = time.UTC
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Minute
	}
	return &SessionService{
		repo:       repo,
		courses:    courses,
		attendance: attendance,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		config:     config,
		location:   loc,
		encoder:    qr.NewEncoder(0),
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
	}
}

// Status derives the time-based state of a session at the given instant. The
// window is a closed interval: boundary instants count as ACTIVE.
func (s *SessionService) Status(session *models.Session, now time.Time) models.SessionStatus {
	start, err := s.combine(session.Date, session.StartTime)
	if err != nil {
		s.logger.Warn("unparseable session start time", zap.String("session_id", session.ID), zap.Error(err))
		return models.SessionStatusEnded
	}
	end, err := s.combine(session.Date, session.EndTime)
	if err != nil {
		s.logger.Warn("unparseable session end time", zap.String("session_id", session.ID), zap.Error(err))
		return models.SessionStatusEnded
	}

	now = now.In(s.location)
	switch {
	case now.Before(start):
		return models.SessionStatusInactive
	case now.After(end):
		return models.SessionStatusEnded
	default:
		return models.SessionStatusActive
	}
}

// Create registers a session for a course the actor lectures.
func (s *SessionService) Create(ctx context.Context, req models.CreateSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid session payload")
	}
	if req.EndTime <= req.StartTime {
		return nil, apperrors.Clone(apperrors.ErrValidation, "end_time must be after start_time")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "course not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.authorizeCourse(ctx, course.ID, actor); err != nil {
		return nil, err
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid session date")
	}

	radius := req.AllowedRadius
	if radius <= 0 {
		radius = 100
	}

	session := &models.Session{
		CourseID:      course.ID,
		FacultyID:     actor.UserID,
		Title:         req.Title,
		Date:          date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		AllowedRadius: radius,
		IsActive:      true,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// Get returns the detailed view including the derived status.
func (s *SessionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SessionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "session not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.authorizeSession(ctx, &detail.Session, actor); err != nil {
		return nil, err
	}
	detail.Status = s.Status(&detail.Session, time.Now())
	return detail, nil
}

// List returns sessions visible to the actor. Faculty see only their own.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter, actor *models.JWTClaims) ([]models.SessionDetail, *models.Pagination, error) {
	if actor.Role == models.RoleFaculty {
		filter.FacultyID = actor.UserID
	}
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list sessions")
	}
	now := time.Now()
	for i := range sessions {
		sessions[i].Status = s.Status(&sessions[i].Session, now)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update mutates an existing session the actor owns.
func (s *SessionService) Update(ctx context.Context, id string, req models.UpdateSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid session payload")
	}

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "session not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.authorizeSession(ctx, session, actor); err != nil {
		return nil, err
	}

	if req.Title != nil {
		session.Title = *req.Title
	}
	if req.Date != nil {
		date, err := time.ParseInLocation("2006-01-02", *req.Date, time.UTC)
		if err != nil {
			return nil, apperrors.Clone(apperrors.ErrValidation, "invalid session date")
		}
		session.Date = date
	}
	if req.StartTime != nil {
		session.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		session.EndTime = *req.EndTime
	}
	if session.EndTime <= session.StartTime {
		return nil, apperrors.Clone(apperrors.ErrValidation, "end_time must be after start_time")
	}
	if req.Latitude != nil {
		session.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		session.Longitude = req.Longitude
	}
	if req.AllowedRadius != nil {
		session.AllowedRadius = *req.AllowedRadius
	}
	if req.IsActive != nil {
		session.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "session not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to update session")
	}
	s.invalidateMarkContext(ctx, session.SessionKey)
	return session, nil
}

// Delete removes a session; its attendance records cascade.
func (s *SessionService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "session not found")
		}
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.authorizeSession(ctx, session, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to delete session")
	}
	s.invalidateMarkContext(ctx, session.SessionKey)
	return nil
}

// SubmissionURL is the absolute public URL a QR code resolves to.
func (s *SessionService) SubmissionURL(sessionKey string) string {
	return fmt.Sprintf("%s/api/v1/attendance/mark/%s", s.config.PublicBaseURL, sessionKey)
}

// QRCodePNG renders the session's submission URL as a PNG QR code.
func (s *SessionService) QRCodePNG(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "session not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.authorizeSession(ctx, session, actor); err != nil {
		return nil, err
	}
	png, err := s.encoder.EncodePNG(s.SubmissionURL(session.SessionKey))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to render qr code")
	}
	return png, nil
}

// MarkContext resolves the public landing-page context by session key. Only
// administratively active sessions resolve; absent and inactive are the same
// 404 so probing keys reveals nothing.
func (s *SessionService) MarkContext(ctx context.Context, sessionKey string) (*models.MarkContext, error) {
	cacheKey := "session:mark:" + sessionKey
	if s.cache != nil {
		var cached models.MarkContext
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			cached.Status = s.statusFromCached(&cached)
			return &cached, nil
		}
	}

	session, err := s.repo.FindActiveByKey(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "session not found or not accepting submissions")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load session")
	}
	course, err := s.courses.FindByID(ctx, session.CourseID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load course")
	}

	mc := &models.MarkContext{
		SessionKey:  session.SessionKey,
		Title:       session.Title,
		CourseCode:  course.Code,
		CourseTitle: course.Title,
		Date:        session.Date.Format("2006-01-02"),
		StartTime:   session.StartTime,
		EndTime:     session.EndTime,
		Status:      s.Status(session, time.Now()),
		Geofenced:   session.Geofenced(),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, mc, s.config.CacheTTL); err != nil {
			s.logger.Warn("failed to cache mark context", zap.Error(err))
		}
	}
	return mc, nil
}

// Report returns the attendance rows plus counters for a session.
func (s *SessionService) Report(ctx context.Context, id string, actor *models.JWTClaims) ([]models.SessionReportRow, int, int, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, 0, apperrors.Clone(apperrors.ErrNotFound, "session not found")
		}
		return nil, 0, 0, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.authorizeSession(ctx, session, actor); err != nil {
		return nil, 0, 0, err
	}
	rows, err := s.attendance.SessionReport(ctx, id)
	if err != nil {
		return nil, 0, 0, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to build report")
	}
	total, verified, err := s.attendance.CountBySession(ctx, id)
	if err != nil {
		return nil, 0, 0, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to count attendance")
	}
	return rows, total, verified, nil
}

// ExportReport renders the session report as CSV or PDF bytes.
func (s *SessionService) ExportReport(ctx context.Context, id, format string, actor *models.JWTClaims) ([]byte, string, error) {
	rows, _, _, err := s.Report(ctx, id, actor)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"admission_number", "first_name", "last_name", "submitted_at", "verified", "method", "distance_m", "flagged", "flag_reason"}
	data := export.Dataset{Headers: headers}
	for _, row := range rows {
		distance := ""
		if row.DistanceMeters != nil {
			distance = fmt.Sprintf("%.1f", *row.DistanceMeters)
		}
		data.Rows = append(data.Rows, map[string]string{
			"admission_number": row.StudentID,
			"first_name":       row.StudentFirstName,
			"last_name":        row.StudentLastName,
			"submitted_at":     row.SubmittedAt.UTC().Format(time.RFC3339),
			"verified":         fmt.Sprintf("%t", row.IsVerified),
			"method":           string(row.Method),
			"distance_m":       distance,
			"flagged":          fmt.Sprintf("%t", row.Flagged),
			"flag_reason":      row.FlagReason,
		})
	}

	switch format {
	case "", "csv":
		out, err := s.csv.Render(data)
		if err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to render csv")
		}
		return out, "text/csv", nil
	case "pdf":
		out, err := s.pdf.Render(data, "Attendance Report")
		if err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to render pdf")
		}
		return out, "application/pdf", nil
	default:
		return nil, "", apperrors.Clone(apperrors.ErrValidation, "unsupported export format")
	}
}

// DeactivateEnded flips the administrative switch on every session whose
// window has passed as of now. Safe to re-run; returns the number swept.
func (s *SessionService) DeactivateEnded(ctx context.Context, now time.Time) (int64, error) {
	local := now.In(s.location)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	n, err := s.repo.DeactivateEnded(ctx, date, local.Format("15:04"))
	if err != nil {
		return 0, fmt.Errorf("session sweep: %w", err)
	}
	if n > 0 {
		s.logger.Info("deactivated ended sessions", zap.Int64("count", n))
	}
	return n, nil
}

// authorizeSession permits admins and the owning faculty member.
func (s *SessionService) authorizeSession(ctx context.Context, session *models.Session, actor *models.JWTClaims) error {
	if actor == nil {
		return apperrors.Clone(apperrors.ErrUnauthorized, "")
	}
	if actor.Role == models.RoleAdmin || session.FacultyID == actor.UserID {
		return nil
	}
	ok, err := s.courses.IsLecturer(ctx, session.CourseID, actor.UserID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to check course access")
	}
	if !ok {
		return apperrors.Clone(apperrors.ErrForbidden, "session belongs to another lecturer")
	}
	return nil
}

// authorizeCourse permits admins and lecturers assigned to the course.
func (s *SessionService) authorizeCourse(ctx context.Context, courseID string, actor *models.JWTClaims) error {
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

// combine builds the instant for a wall-clock time on the session date in
// the configured zone. Times are stored as HH:MM strings.
func (s *SessionService) combine(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		t, err = time.Parse("15:04:05", hhmm)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time %q: %w", hhmm, err)
		}
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), t.Second(), 0, s.location), nil
}

func (s *SessionService) statusFromCached(mc *models.MarkContext) models.SessionStatus {
	date, err := time.Parse("2006-01-02", mc.Date)
	if err != nil {
		return mc.Status
	}
	session := models.Session{Date: date, StartTime: mc.StartTime, EndTime: mc.EndTime}
	return s.Status(&session, time.Now())
}

func (s *SessionService) invalidateMarkContext(ctx context.Context, sessionKey string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, "session:mark:"+sessionKey); err != nil {
		s.logger.Warn("failed to invalidate mark context cache", zap.Error(err))
	}
}
