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
)

type mockEnrollments struct {
	byID      map[string]models.Enrollment
	byPair    map[string]models.Enrollment
	created   *models.Enrollment
	createErr error
	decideErr error
	decided   map[string]models.EnrollmentStatus
}

func (m *mockEnrollments) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	m.created = enrollment
	return nil
}

func (m *mockEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.byID[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollments) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	if e, ok := m.byPair[studentID+":"+courseID]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollments) UpdateDecision(ctx context.Context, id string, status models.EnrollmentStatus, decidedBy string, decidedAt time.Time) error {
	if m.decideErr != nil {
		return m.decideErr
	}
	if m.decided == nil {
		m.decided = make(map[string]models.EnrollmentStatus)
	}
	m.decided[id] = status
	return nil
}

func (m *mockEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

type mockKeys struct {
	byValue  map[string]models.EnrollmentKey
	byCourse map[string]models.EnrollmentKey
	created  *models.EnrollmentKey
	rotated  *models.EnrollmentKey
}

func (m *mockKeys) FindByKey(ctx context.Context, key string) (*models.EnrollmentKey, error) {
	if k, ok := m.byValue[key]; ok {
		return &k, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockKeys) FindByCourse(ctx context.Context, courseID string) (*models.EnrollmentKey, error) {
	if k, ok := m.byCourse[courseID]; ok {
		return &k, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockKeys) Create(ctx context.Context, key *models.EnrollmentKey) error {
	key.ID = "key-new"
	m.created = key
	return nil
}

func (m *mockKeys) Rotate(ctx context.Context, courseID, newKey string, expiresAt *time.Time) (*models.EnrollmentKey, error) {
	existing, ok := m.byCourse[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	previous := existing.Key
	now := time.Now().UTC()
	existing.PreviousKey = &previous
	existing.Key = newKey
	existing.ExpiresAt = expiresAt
	existing.RegeneratedAt = &now
	m.byCourse[courseID] = existing
	m.rotated = &existing
	return &existing, nil
}

type mockEnrollStudents struct {
	students map[string]models.Student
}

func (m *mockEnrollStudents) FindByAdmissionNumber(ctx context.Context, admissionNumber string) (*models.Student, error) {
	if s, ok := m.students[admissionNumber]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollments, *mockKeys) {
	enrollments := &mockEnrollments{byPair: map[string]models.Enrollment{}}
	keys := &mockKeys{
		byValue: map[string]models.EnrollmentKey{
			"goodkey": {ID: "key-1", CourseID: "course-cs101", Key: "goodkey"},
		},
		byCourse: map[string]models.EnrollmentKey{
			"course-cs101": {ID: "key-1", CourseID: "course-cs101", Key: "goodkey"},
		},
	}
	students := &mockEnrollStudents{students: map[string]models.Student{
		"S1": {AdmissionNumber: "S1", FirstName: "Ada"},
	}}
	courses := &mockCourseAccess{
		courses:   map[string]models.Course{"course-cs101": {ID: "course-cs101", Code: "CS101", Title: "Intro"}},
		lecturers: map[string]bool{"course-cs101:fac-1": true},
	}
	svc := NewEnrollmentService(enrollments, keys, students, courses, validator.New(), zap.NewNop(), EnrollmentConfig{})
	return svc, enrollments, keys
}

func TestEnrollmentRequestInvalidKey(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Request(context.Background(), models.EnrollRequest{AdmissionNumber: "S1", EnrollmentKey: "wrong"})
	requireCode(t, err, "INVALID_KEY")
}

func TestEnrollmentRequestExpiredKey(t *testing.T) {
	svc, _, keys := newEnrollmentFixture()
	expired := time.Now().UTC().Add(-time.Hour)
	key := keys.byValue["goodkey"]
	key.ExpiresAt = &expired
	keys.byValue["goodkey"] = key

	_, err := svc.Request(context.Background(), models.EnrollRequest{AdmissionNumber: "S1", EnrollmentKey: "goodkey"})
	requireCode(t, err, "EXPIRED_KEY")
}

func TestEnrollmentRequestUnknownStudent(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Request(context.Background(), models.EnrollRequest{AdmissionNumber: "ghost", EnrollmentKey: "goodkey"})
	requireCode(t, err, "NOT_FOUND")
}

func TestEnrollmentRequestCreatesPending(t *testing.T) {
	svc, enrollments, _ := newEnrollmentFixture()

	resp, err := svc.Request(context.Background(), models.EnrollRequest{AdmissionNumber: "S1", EnrollmentKey: "goodkey"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, resp.Status)
	assert.Equal(t, "CS101", resp.CourseCode)
	assert.False(t, resp.AlreadyKnown)
	require.NotNil(t, enrollments.created)
	assert.Equal(t, "S1", enrollments.created.StudentID)
}

func TestEnrollmentRequestIdempotent(t *testing.T) {
	svc, enrollments, _ := newEnrollmentFixture()
	enrollments.byPair["S1:course-cs101"] = models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusRejected}

	resp, err := svc.Request(context.Background(), models.EnrollRequest{AdmissionNumber: "S1", EnrollmentKey: "goodkey"})
	require.NoError(t, err)
	assert.True(t, resp.AlreadyKnown)
	assert.Equal(t, models.EnrollmentStatusRejected, resp.Status)
	assert.Nil(t, enrollments.created)
}

func TestEnrollmentDecideApprove(t *testing.T) {
	svc, enrollments, _ := newEnrollmentFixture()
	enrollments.byID = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "S1", CourseID: "course-cs101", Status: models.EnrollmentStatusPending},
	}

	decided, err := svc.Decide(context.Background(), "enr-1", models.EnrollmentDecisionRequest{Decision: "approve"}, &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, decided.Status)
	assert.Equal(t, models.EnrollmentStatusApproved, enrollments.decided["enr-1"])
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, "fac-1", *decided.DecidedBy)
}

func TestEnrollmentDecideAlreadyDecided(t *testing.T) {
	svc, enrollments, _ := newEnrollmentFixture()
	enrollments.byID = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", CourseID: "course-cs101", Status: models.EnrollmentStatusApproved},
	}
	enrollments.decideErr = sql.ErrNoRows

	_, err := svc.Decide(context.Background(), "enr-1", models.EnrollmentDecisionRequest{Decision: "reject"}, &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty})
	requireCode(t, err, "CONFLICT")
}

func TestEnrollmentDecideForbiddenForOtherFaculty(t *testing.T) {
	svc, enrollments, _ := newEnrollmentFixture()
	enrollments.byID = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", CourseID: "course-cs101", Status: models.EnrollmentStatusPending},
	}

	_, err := svc.Decide(context.Background(), "enr-1", models.EnrollmentDecisionRequest{Decision: "approve"}, &models.JWTClaims{UserID: "other", Role: models.RoleFaculty})
	requireCode(t, err, "FORBIDDEN")
}

func TestEnrollmentRegenerateKey(t *testing.T) {
	svc, _, keys := newEnrollmentFixture()

	rotated, err := svc.RegenerateKey(context.Background(), "course-cs101", &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty})
	require.NoError(t, err)
	assert.Len(t, rotated.Key, 32)
	assert.NotEqual(t, "goodkey", rotated.Key)
	require.NotNil(t, rotated.PreviousKey)
	assert.Equal(t, "goodkey", *rotated.PreviousKey)
	assert.NotNil(t, rotated.RegeneratedAt)
	require.NotNil(t, keys.rotated)
}

func TestEnrollmentRegenerateIssuesWhenMissing(t *testing.T) {
	svc, _, keys := newEnrollmentFixture()
	delete(keys.byCourse, "course-cs101")

	issued, err := svc.RegenerateKey(context.Background(), "course-cs101", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, issued.Key, 32)
	require.NotNil(t, keys.created)
}
