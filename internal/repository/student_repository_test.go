package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/attendance-api/internal/models"
)

func TestStudentRepositoryGetOrCreateInsertsWhenMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT admission_number, first_name, last_name, created_at FROM students WHERE admission_number = $1")).
		WithArgs("CS-2024-001").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number", "first_name", "last_name", "created_at"}))
	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(0, 1))

	student, created, err := repo.GetOrCreate(context.Background(), "CS-2024-001")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "CS-2024-001", student.AdmissionNumber)
	require.Empty(t, student.FirstName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryGetOrCreateRereadsAfterRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	selectQuery := regexp.QuoteMeta("SELECT admission_number, first_name, last_name, created_at FROM students WHERE admission_number = $1")

	mock.ExpectQuery(selectQuery).
		WithArgs("CS-2024-001").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number", "first_name", "last_name", "created_at"}))
	mock.ExpectExec("INSERT INTO students").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "students_pkey"})
	mock.ExpectQuery(selectQuery).
		WithArgs("CS-2024-001").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number", "first_name", "last_name", "created_at"}).
			AddRow("CS-2024-001", "Ada", "Lovelace", time.Now()))

	student, created, err := repo.GetOrCreate(context.Background(), "CS-2024-001")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "Ada", student.FirstName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Student{AdmissionNumber: "CS-2024-001", FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
