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
	"github.com/campuskit/attendance-api/internal/repository"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
)

type mockAttendanceSessions struct {
	byKey map[string]models.Session
}

func (m *mockAttendanceSessions) FindActiveByKey(ctx context.Context, key string) (*models.Session, error) {
	if s, ok := m.byKey[key]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockAttendanceStudents struct {
	students map[string]models.Student
	created  []string
}

func (m *mockAttendanceStudents) FindByAdmissionNumber(ctx context.Context, admissionNumber string) (*models.Student, error) {
	if s, ok := m.students[admissionNumber]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceStudents) GetOrCreate(ctx context.Context, admissionNumber string) (*models.Student, bool, error) {
	if s, ok := m.students[admissionNumber]; ok {
		return &s, false, nil
	}
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	fresh := models.Student{AdmissionNumber: admissionNumber}
	m.students[admissionNumber] = fresh
	m.created = append(m.created, admissionNumber)
	return &fresh, true, nil
}

type mockAttendanceEnrollments struct {
	approved map[string]bool
	details  []models.EnrollmentDetail
}

func (m *mockAttendanceEnrollments) ApprovedExists(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.approved[studentID+":"+courseID], nil
}

func (m *mockAttendanceEnrollments) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.details, nil
}

type mockAttendanceRecords struct {
	byStudent map[string]bool
	byIP      map[string]bool
	created   []models.AttendanceRecord
	createErr error
	history   []models.StudentAttendanceRow
}

func (m *mockAttendanceRecords) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = "rec-1"
	m.created = append(m.created, *record)
	return nil
}

func (m *mockAttendanceRecords) ExistsForStudent(ctx context.Context, sessionID, studentID string) (bool, error) {
	return m.byStudent[sessionID+":"+studentID], nil
}

func (m *mockAttendanceRecords) ExistsForIP(ctx context.Context, sessionID, ip string) (bool, error) {
	return m.byIP[sessionID+":"+ip], nil
}

func (m *mockAttendanceRecords) StudentHistory(ctx context.Context, studentID, courseID string) ([]models.StudentAttendanceRow, error) {
	return m.history, nil
}

type stubStatus struct {
	status models.SessionStatus
}

func (s *stubStatus) Status(session *models.Session, now time.Time) models.SessionStatus {
	return s.status
}

func ptrFloat(v float64) *float64 { return &v }

func activeCS101() map[string]models.Session {
	return map[string]models.Session{
		"abc-123": {
			ID:            "ses-1",
			CourseID:      "course-cs101",
			SessionKey:    "abc-123",
			Title:         "CS101 Lecture",
			IsActive:      true,
			Latitude:      ptrFloat(6.5244),
			Longitude:     ptrFloat(3.3792),
			AllowedRadius: 100,
		},
	}
}

func newAttendanceFixture(status models.SessionStatus) (*AttendanceService, *mockAttendanceStudents, *mockAttendanceEnrollments, *mockAttendanceRecords) {
	sessions := &mockAttendanceSessions{byKey: activeCS101()}
	students := &mockAttendanceStudents{students: map[string]models.Student{
		"S1": {AdmissionNumber: "S1", FirstName: "Ada", LastName: "Lovelace"},
	}}
	enrollments := &mockAttendanceEnrollments{approved: map[string]bool{"S1:course-cs101": true}}
	records := &mockAttendanceRecords{}
	svc := NewAttendanceService(sessions, students, enrollments, records, &stubStatus{status: status}, nil, validator.New(), zap.NewNop(), AttendancePolicy{EnforceIPUnique: true, GeofenceEnabled: true})
	return svc, students, enrollments, records
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestAttendanceSubmitUnknownKey(t *testing.T) {
	svc, _, _, records := newAttendanceFixture(models.SessionStatusActive)

	_, err := svc.Submit(context.Background(), "nope", models.SubmitAttendanceRequest{AdmissionNumber: "S1"})
	requireCode(t, err, apperrors.ErrNotFound.Code)
	assert.Empty(t, records.created)
}

func TestAttendanceSubmitEndedSession(t *testing.T) {
	svc, _, _, records := newAttendanceFixture(models.SessionStatusEnded)

	_, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{AdmissionNumber: "S1"})
	requireCode(t, err, apperrors.ErrSessionEnded.Code)
	assert.Empty(t, records.created)
}

func TestAttendanceSubmitNotEnrolled(t *testing.T) {
	svc, students, _, records := newAttendanceFixture(models.SessionStatusActive)

	// S2 has never been seen: the student row is created lazily, but without
	// an approved enrollment the submission is still rejected.
	_, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{AdmissionNumber: "S2"})
	requireCode(t, err, apperrors.ErrNotEnrolled.Code)
	assert.Contains(t, students.created, "S2")
	assert.Empty(t, records.created)
}

func TestAttendanceSubmitDuplicateStudent(t *testing.T) {
	svc, _, _, records := newAttendanceFixture(models.SessionStatusActive)
	records.byStudent = map[string]bool{"ses-1:S1": true}

	_, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{AdmissionNumber: "S1"})
	requireCode(t, err, apperrors.ErrDuplicateSubmission.Code)
	assert.Empty(t, records.created)
}

func TestAttendanceSubmitDuplicateDevice(t *testing.T) {
	svc, _, enrollments, records := newAttendanceFixture(models.SessionStatusActive)
	enrollments.approved["S2:course-cs101"] = true
	records.byIP = map[string]bool{"ses-1:10.0.0.9": true}

	_, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{AdmissionNumber: "S2", IP: "10.0.0.9"})
	requireCode(t, err, apperrors.ErrDuplicateDevice.Code)
	assert.Empty(t, records.created)
}

func TestAttendanceSubmitInsertRaceMapsToDuplicate(t *testing.T) {
	svc, _, _, records := newAttendanceFixture(models.SessionStatusActive)
	records.createErr = repository.ErrDuplicateAttendance

	_, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{AdmissionNumber: "S1"})
	requireCode(t, err, apperrors.ErrDuplicateSubmission.Code)
}

func TestAttendanceSubmitWithinRadius(t *testing.T) {
	svc, _, _, records := newAttendanceFixture(models.SessionStatusActive)

	resp, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{
		AdmissionNumber: "S1",
		Latitude:        ptrFloat(6.5244),
		Longitude:       ptrFloat(3.3792),
		IP:              "10.0.0.1",
	})
	require.NoError(t, err)
	assert.True(t, resp.IsVerified)
	assert.False(t, resp.Flagged)
	require.Len(t, records.created, 1)
	record := records.created[0]
	assert.Equal(t, models.VerificationMethodGPS, record.VerificationMethod)
	require.NotNil(t, record.DistanceMeters)
	assert.InDelta(t, 0, *record.DistanceMeters, 0.001)
}

func TestAttendanceSubmitOutsideRadiusRecordedFlagged(t *testing.T) {
	svc, _, _, records := newAttendanceFixture(models.SessionStatusActive)

	// roughly 1.1km north of the class center
	resp, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{
		AdmissionNumber: "S1",
		Latitude:        ptrFloat(6.5344),
		Longitude:       ptrFloat(3.3792),
	})
	require.NoError(t, err)
	assert.False(t, resp.IsVerified)
	assert.True(t, resp.Flagged)
	assert.Equal(t, "outside allowed radius", resp.FlagReason)
	require.Len(t, records.created, 1)
	require.NotNil(t, records.created[0].DistanceMeters)
	assert.Greater(t, *records.created[0].DistanceMeters, 100.0)
}

func TestAttendanceSubmitMissingLocationOnGeofencedSession(t *testing.T) {
	svc, _, _, records := newAttendanceFixture(models.SessionStatusActive)

	resp, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{AdmissionNumber: "S1"})
	require.NoError(t, err)
	assert.False(t, resp.IsVerified)
	assert.True(t, resp.Flagged)
	assert.Equal(t, "no location provided", resp.FlagReason)
	require.Len(t, records.created, 1)
	assert.Equal(t, models.VerificationMethodNone, records.created[0].VerificationMethod)
}

func TestAttendanceSubmitNoGeofenceConfigured(t *testing.T) {
	sessions := &mockAttendanceSessions{byKey: map[string]models.Session{
		"abc-123": {ID: "ses-1", CourseID: "course-cs101", SessionKey: "abc-123", IsActive: true},
	}}
	students := &mockAttendanceStudents{students: map[string]models.Student{"S1": {AdmissionNumber: "S1"}}}
	enrollments := &mockAttendanceEnrollments{approved: map[string]bool{"S1:course-cs101": true}}
	records := &mockAttendanceRecords{}
	svc := NewAttendanceService(sessions, students, enrollments, records, &stubStatus{status: models.SessionStatusActive}, nil, validator.New(), zap.NewNop(), AttendancePolicy{GeofenceEnabled: true})

	resp, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{AdmissionNumber: "S1"})
	require.NoError(t, err)
	assert.True(t, resp.IsVerified)
	require.Len(t, records.created, 1)
	assert.Equal(t, models.VerificationMethodNone, records.created[0].VerificationMethod)
	assert.Nil(t, records.created[0].DistanceMeters)
}

func TestAttendanceSubmitHalfLocationRejected(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture(models.SessionStatusActive)

	_, err := svc.Submit(context.Background(), "abc-123", models.SubmitAttendanceRequest{
		AdmissionNumber: "S1",
		Latitude:        ptrFloat(6.5244),
	})
	requireCode(t, err, apperrors.ErrValidation.Code)
}

func TestAttendanceLookup(t *testing.T) {
	svc, _, enrollments, records := newAttendanceFixture(models.SessionStatusActive)
	enrollments.details = []models.EnrollmentDetail{{CourseCode: "CS101"}}
	records.history = []models.StudentAttendanceRow{{CourseCode: "CS101", IsVerified: true}}

	resp, err := svc.Lookup(context.Background(), models.AttendanceLookupRequest{AdmissionNumber: "S1"})
	require.NoError(t, err)
	assert.Equal(t, "S1", resp.Student.AdmissionNumber)
	assert.Len(t, resp.Enrollments, 1)
	assert.Len(t, resp.Records, 1)

	_, err = svc.Lookup(context.Background(), models.AttendanceLookupRequest{AdmissionNumber: "ghost"})
	requireCode(t, err, apperrors.ErrNotFound.Code)
}
