package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
)

type mockStudentRepo struct {
	students map[string]models.Student
	upserted []models.Student
}

func (m *mockStudentRepo) FindByAdmissionNumber(ctx context.Context, admissionNumber string) (*models.Student, error) {
	if s, ok := m.students[admissionNumber]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	m.students[student.AdmissionNumber] = *student
	return nil
}

func (m *mockStudentRepo) Upsert(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	m.students[student.AdmissionNumber] = *student
	m.upserted = append(m.upserted, *student)
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if _, ok := m.students[student.AdmissionNumber]; !ok {
		return sql.ErrNoRows
	}
	m.students[student.AdmissionNumber] = *student
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, admissionNumber string) error {
	if _, ok := m.students[admissionNumber]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, admissionNumber)
	return nil
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) All(ctx context.Context) ([]models.Student, error) {
	var out []models.Student
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, nil
}

type mockImportLogs struct {
	created *models.StudentImportLog
	updated *models.StudentImportLog
}

func (m *mockImportLogs) CreateImportLog(ctx context.Context, log *models.StudentImportLog) error {
	log.ID = "imp-1"
	m.created = log
	return nil
}

func (m *mockImportLogs) UpdateImportLog(ctx context.Context, log *models.StudentImportLog) error {
	copied := *log
	m.updated = &copied
	return nil
}

func TestStudentImportCSVMixedRows(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"CS-2024-001": {AdmissionNumber: "CS-2024-001", FirstName: "Old", LastName: "Name"},
	}}
	logs := &mockImportLogs{}
	svc := NewStudentService(repo, logs, validator.New(), zap.NewNop())

	csvBody := strings.Join([]string{
		"admission_number,first_name,last_name",
		"CS-2024-001,Ada,Lovelace",   // update
		"CS-2024-002,Grace,Hopper",   // create
		",Missing,Number",            // bad: no admission number
		"CS-2024-003,,",              // bad: no name
	}, "\n")

	result, err := svc.ImportCSV(context.Background(), "roster.csv", strings.NewReader(csvBody), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, "imp-1", result.ImportID)

	// update-or-create by admission number
	assert.Equal(t, "Ada", repo.students["CS-2024-001"].FirstName)
	assert.Equal(t, "Grace", repo.students["CS-2024-002"].FirstName)

	require.NotNil(t, logs.updated)
	assert.Equal(t, models.ImportStatusCompleted, logs.updated.Status)
	assert.Equal(t, 4, logs.updated.RecordsTotal)
	assert.Equal(t, 2, logs.updated.RecordsImported)
	assert.Contains(t, logs.updated.ErrorLog, "line 4")
}

func TestStudentImportCSVBadHeader(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{}}
	logs := &mockImportLogs{}
	svc := NewStudentService(repo, logs, validator.New(), zap.NewNop())

	_, err := svc.ImportCSV(context.Background(), "roster.csv", strings.NewReader("id,name\n1,x"), nil)
	requireCode(t, err, "VALIDATION_ERROR")
	require.NotNil(t, logs.updated)
	assert.Equal(t, models.ImportStatusFailed, logs.updated.Status)
	assert.Empty(t, repo.upserted)
}

func TestStudentExportCSV(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"CS-2024-001": {AdmissionNumber: "CS-2024-001", FirstName: "Ada", LastName: "Lovelace"},
	}}
	svc := NewStudentService(repo, &mockImportLogs{}, validator.New(), zap.NewNop())

	out, err := svc.ExportCSV(context.Background())
	require.NoError(t, err)
	body := string(out)
	assert.True(t, strings.HasPrefix(body, "admission_number,first_name,last_name"))
	assert.Contains(t, body, "CS-2024-001,Ada,Lovelace")
}

func TestStudentUpdateNotFound(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{}}
	svc := NewStudentService(repo, &mockImportLogs{}, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "ghost", models.UpsertStudentRequest{AdmissionNumber: "ghost", FirstName: "A", LastName: "B"})
	requireCode(t, err, "NOT_FOUND")
}
