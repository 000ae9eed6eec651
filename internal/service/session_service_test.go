package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
)

type mockSessionRepo struct {
	sessions    map[string]models.Session
	byKey       map[string]models.Session
	created     *models.Session
	updated     *models.Session
	sweepDate   time.Time
	sweepTime   string
	sweepResult int64
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = "new-session"
	}
	if session.SessionKey == "" {
		session.SessionKey = "new-key"
	}
	m.created = session
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindActiveByKey(ctx context.Context, key string) (*models.Session, error) {
	if s, ok := m.byKey[key]; ok && s.IsActive {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if s, ok := m.sessions[id]; ok {
		return &models.SessionDetail{Session: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *models.Session) error {
	m.updated = session
	m.sessions[session.ID] = *session
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionRepo) DeactivateEnded(ctx context.Context, date time.Time, timeOfDay string) (int64, error) {
	m.sweepDate = date
	m.sweepTime = timeOfDay
	return m.sweepResult, nil
}

type mockCourseAccess struct {
	courses   map[string]models.Course
	lecturers map[string]bool
}

func (m *mockCourseAccess) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseAccess) IsLecturer(ctx context.Context, courseID, userID string) (bool, error) {
	return m.lecturers[courseID+":"+userID], nil
}

type mockReportRepo struct {
	rows []models.SessionReportRow
}

func (m *mockReportRepo) SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error) {
	return m.rows, nil
}

func (m *mockReportRepo) CountBySession(ctx context.Context, sessionID string) (int, int, error) {
	verified := 0
	for _, row := range m.rows {
		if row.IsVerified {
			verified++
		}
	}
	return len(m.rows), verified, nil
}

func newSessionService(repo *mockSessionRepo, courses *mockCourseAccess) *SessionService {
	return NewSessionService(repo, courses, &mockReportRepo{}, nil, validator.New(), zap.NewNop(), SessionConfig{
		Timezone:      "UTC",
		PublicBaseURL: "https://attend.campus.example",
	})
}

func TestSessionStatusBoundaries(t *testing.T) {
	svc := newSessionService(&mockSessionRepo{}, &mockCourseAccess{})
	session := &models.Session{
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:30",
	}

	cases := []struct {
		name string
		now  time.Time
		want models.SessionStatus
	}{
		{"before start", time.Date(2026, 3, 10, 8, 59, 59, 0, time.UTC), models.SessionStatusInactive},
		{"exactly at start", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), models.SessionStatusActive},
		{"mid window", time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC), models.SessionStatusActive},
		{"exactly at end", time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC), models.SessionStatusActive},
		{"after end", time.Date(2026, 3, 10, 10, 30, 1, 0, time.UTC), models.SessionStatusEnded},
		{"previous day", time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC), models.SessionStatusInactive},
		{"next day", time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), models.SessionStatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, svc.Status(session, tc.now))
		})
	}
}

func TestSessionServiceCreateRejectsInvertedWindow(t *testing.T) {
	repo := &mockSessionRepo{}
	courses := &mockCourseAccess{
		courses:   map[string]models.Course{"11111111-1111-4111-8111-111111111111": {ID: "11111111-1111-4111-8111-111111111111", Code: "CS101"}},
		lecturers: map[string]bool{"11111111-1111-4111-8111-111111111111:fac-1": true},
	}
	svc := newSessionService(repo, courses)

	_, err := svc.Create(context.Background(), models.CreateSessionRequest{
		CourseID:  "11111111-1111-4111-8111-111111111111",
		Title:     "Lecture",
		Date:      "2026-03-10",
		StartTime: "10:30",
		EndTime:   "09:00",
	}, &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty})

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrValidation.Code, appErr.Code)
	assert.Nil(t, repo.created)
}

func TestSessionServiceCreateForbiddenForUnassignedFaculty(t *testing.T) {
	courseID := "11111111-1111-4111-8111-111111111111"
	repo := &mockSessionRepo{}
	courses := &mockCourseAccess{courses: map[string]models.Course{courseID: {ID: courseID}}}
	svc := newSessionService(repo, courses)

	_, err := svc.Create(context.Background(), models.CreateSessionRequest{
		CourseID:  courseID,
		Title:     "Lecture",
		Date:      "2026-03-10",
		StartTime: "09:00",
		EndTime:   "10:30",
	}, &models.JWTClaims{UserID: "other", Role: models.RoleFaculty})

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrForbidden.Code, appErr.Code)
}

func TestSessionServiceSubmissionURL(t *testing.T) {
	svc := newSessionService(&mockSessionRepo{}, &mockCourseAccess{})
	assert.Equal(t, "https://attend.campus.example/api/v1/attendance/mark/abc-123", svc.SubmissionURL("abc-123"))
}

func TestSessionServiceDeactivateEnded(t *testing.T) {
	repo := &mockSessionRepo{sweepResult: 2}
	svc := newSessionService(repo, &mockCourseAccess{})

	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	n, err := svc.DeactivateEnded(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "11:00", repo.sweepTime)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), repo.sweepDate)

	// re-running the sweep is harmless
	repo.sweepResult = 0
	n, err = svc.DeactivateEnded(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionServiceMarkContextHidesInactive(t *testing.T) {
	repo := &mockSessionRepo{byKey: map[string]models.Session{
		"inactive-key": {ID: "ses-1", SessionKey: "inactive-key", IsActive: false},
	}}
	svc := newSessionService(repo, &mockCourseAccess{})

	_, err := svc.MarkContext(context.Background(), "inactive-key")
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)

	_, err = svc.MarkContext(context.Background(), "missing-key")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}
