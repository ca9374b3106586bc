package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uniportal-api/internal/models"
)

func registrationRows(status models.RegistrationStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "course_id", "semester", "academic_year", "status", "registered_at", "approved_at", "approved_by", "notes"}).
		AddRow("reg-1", "stu-1", "course-1", "FIRST", "2025/2026", status, time.Now(), nil, nil, "")
}

func TestRegistrationRepositoryCreateDuplicateTuple(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("INSERT INTO course_registrations").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "course_registrations_tuple_key"})

	err := repo.Create(context.Background(), &models.CourseRegistration{
		StudentID: "stu-1", CourseID: "course-1", Semester: models.SemesterFirst, AcademicYear: "2025/2026",
	})
	require.ErrorIs(t, err, ErrDuplicateTuple)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTransitionApprove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM course_registrations WHERE id = \\$1 FOR UPDATE").
		WithArgs("reg-1").
		WillReturnRows(registrationRows(models.RegistrationStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET current_enrollment = current_enrollment + 1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_registrations SET status = $2")).
		WithArgs("reg-1", models.RegistrationStatusApproved, sqlmock.AnyArg(), sqlmock.AnyArg(), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reg, err := repo.Transition(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		Target:         models.RegistrationStatusApproved,
		ActorID:        "admin-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusApproved, reg.Status)
	require.NotNil(t, reg.ApprovedAt)
	require.NotNil(t, reg.ApprovedBy)
	require.Equal(t, "admin-1", *reg.ApprovedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTransitionApproveSeatRaceLost(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("reg-1").
		WillReturnRows(registrationRows(models.RegistrationStatusPending))
	// Seat reservation affects zero rows: capacity was consumed by a
	// concurrent approval. The whole transaction must roll back.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET current_enrollment = current_enrollment + 1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		Target:         models.RegistrationStatusApproved,
		ActorID:        "admin-1",
	})
	require.ErrorIs(t, err, ErrSeatUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTransitionRejectAfterApproveReleasesSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("reg-1").
		WillReturnRows(registrationRows(models.RegistrationStatusApproved))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET current_enrollment = current_enrollment - 1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_registrations SET status = $2")).
		WithArgs("reg-1", models.RegistrationStatusRejected, sqlmock.AnyArg(), sqlmock.AnyArg(), "seat reassigned").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reg, err := repo.Transition(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		Target:         models.RegistrationStatusRejected,
		ActorID:        "admin-1",
		Notes:          "seat reassigned",
	})
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusRejected, reg.Status)
	require.Equal(t, "seat reassigned", reg.Notes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTransitionIdempotentApprove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("reg-1").
		WillReturnRows(registrationRows(models.RegistrationStatusApproved))
	mock.ExpectRollback()

	// A second approval must not touch the enrollment counter.
	_, err := repo.Transition(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		Target:         models.RegistrationStatusApproved,
		ActorID:        "admin-2",
	})
	require.ErrorIs(t, err, ErrAlreadyInStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTransitionFromTerminal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("reg-1").
		WillReturnRows(registrationRows(models.RegistrationStatusRejected))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		Target:         models.RegistrationStatusApproved,
		ActorID:        "admin-1",
	})
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryExistsTuple(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM course_registrations WHERE student_id = $1 AND course_id = $2 AND semester = $3 AND academic_year = $4 LIMIT 1")).
		WithArgs("stu-1", "course-1", models.SemesterFirst, "2025/2026").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsTuple(context.Background(), "stu-1", "course-1", models.SemesterFirst, "2025/2026")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
