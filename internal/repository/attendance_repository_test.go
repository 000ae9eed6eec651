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

func TestAttendanceRepositoryCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attendance_records_session_id_student_id_key"})

	record := &models.AttendanceRecord{
		SessionID:          "ses-1",
		StudentID:          "CS-2024-001",
		IsVerified:         true,
		VerificationMethod: models.VerificationMethodGPS,
	}
	err := repo.Create(context.Background(), record)
	require.ErrorIs(t, err, ErrDuplicateAttendance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryExistsForStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("ses-1", "CS-2024-001").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsForStudent(context.Background(), "ses-1", "CS-2024-001")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("ses-1", "CS-2024-002").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsForStudent(context.Background(), "ses-1", "CS-2024-002")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySessionReport(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	distance := 12.5
	rows := sqlmock.NewRows([]string{"student_id", "student_first_name", "student_last_name", "submitted_at", "is_verified", "verification_method", "distance_meters", "flagged", "flag_reason"}).
		AddRow("CS-2024-001", "Ada", "Lovelace", time.Now(), true, models.VerificationMethodGPS, &distance, false, "")
	mock.ExpectQuery("SELECT ar.student_id, s.first_name AS student_first_name").
		WithArgs("ses-1").
		WillReturnRows(rows)

	report, err := repo.SessionReport(context.Background(), "ses-1")
	require.NoError(t, err)
	require.Len(t, report, 1)
	require.Equal(t, "Ada", report[0].StudentFirstName)
	require.True(t, report[0].IsVerified)
	require.NoError(t, mock.ExpectationsWereMet())
}
