package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSessionRepositoryFindActiveByKey(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "faculty_id", "session_key", "title", "date", "start_time", "end_time", "latitude", "longitude", "allowed_radius", "is_active", "created_at"}).
		AddRow("ses-1", "course-1", "fac-1", "abc-123", "Lecture 1", time.Now(), "09:00", "10:30", nil, nil, 100, true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_id, faculty_id, session_key, title, date, start_time, end_time, latitude, longitude, allowed_radius, is_active, created_at FROM sessions WHERE session_key = $1 AND is_active = TRUE")).
		WithArgs("abc-123").
		WillReturnRows(rows)

	session, err := repo.FindActiveByKey(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Equal(t, "ses-1", session.ID)
	require.False(t, session.Geofenced())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeactivateEnded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET is_active = FALSE")).
		WithArgs(today, "11:00").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeactivateEnded(context.Background(), today, "11:00")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
