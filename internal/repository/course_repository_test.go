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

func TestCourseRepositoryTryReserveSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET current_enrollment = current_enrollment + 1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reserved, err := repo.TryReserveSeat(context.Background(), "course-1")
	require.NoError(t, err)
	require.True(t, reserved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryTryReserveSeatFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	// Conditional update matches no row when the course is at capacity.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET current_enrollment = current_enrollment + 1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	reserved, err := repo.TryReserveSeat(context.Background(), "course-1")
	require.NoError(t, err)
	require.False(t, reserved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryReleaseSeatNeverNegative(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET current_enrollment = current_enrollment - 1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := repo.ReleaseSeat(context.Background(), "course-1")
	require.NoError(t, err)
	require.False(t, released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	max := 60
	rows := sqlmock.NewRows([]string{"id", "code", "title", "credit_units", "department", "program", "level", "semester", "active", "max_students", "current_enrollment", "created_by", "created_at", "updated_at"}).
		AddRow("course-1", "CSC301", "Operating Systems", 3, "Computer Science", "BSc Computer Science", 300, "FIRST", true, max, 12, "admin-1", time.Now(), time.Now())
	mock.ExpectQuery("SELECT .+ FROM courses WHERE code = \\$1").
		WithArgs("CSC301").
		WillReturnRows(rows)

	course, err := repo.FindByCode(context.Background(), "CSC301")
	require.NoError(t, err)
	require.Equal(t, "CSC301", course.Code)
	require.True(t, course.HasCapacity())
	require.NoError(t, mock.ExpectationsWereMet())
}
