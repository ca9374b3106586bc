package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/internal/repository"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

type mockRegistrationRepo struct {
	findByID       func(ctx context.Context, id string) (*models.CourseRegistration, error)
	findDetailByID func(ctx context.Context, id string) (*models.RegistrationDetail, error)
	existsTuple    func(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error)
	create         func(ctx context.Context, reg *models.CourseRegistration) error
	transition     func(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error)
	list           func(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
}

func (m *mockRegistrationRepo) FindByID(ctx context.Context, id string) (*models.CourseRegistration, error) {
	return m.findByID(ctx, id)
}

func (m *mockRegistrationRepo) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	return m.findDetailByID(ctx, id)
}

func (m *mockRegistrationRepo) ExistsTuple(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error) {
	return m.existsTuple(ctx, studentID, courseID, semester, academicYear)
}

func (m *mockRegistrationRepo) Create(ctx context.Context, reg *models.CourseRegistration) error {
	return m.create(ctx, reg)
}

func (m *mockRegistrationRepo) Transition(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error) {
	return m.transition(ctx, params)
}

func (m *mockRegistrationRepo) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return m.list(ctx, filter)
}

type mockCourseReader struct {
	findByID func(ctx context.Context, id string) (*models.Course, error)
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return m.findByID(ctx, id)
}

func intPtr(v int) *int { return &v }

func openCourse() *models.Course {
	return &models.Course{
		ID:                "course-1",
		Code:              "CSC301",
		Title:             "Operating Systems",
		Active:            true,
		MaxStudents:       intPtr(2),
		CurrentEnrollment: 1,
	}
}

func registrationDetail(status models.RegistrationStatus) *models.RegistrationDetail {
	return &models.RegistrationDetail{
		CourseRegistration: models.CourseRegistration{
			ID:           "reg-1",
			StudentID:    "stu-1",
			CourseID:     "course-1",
			Semester:     models.SemesterFirst,
			AcademicYear: "2025/2026",
			Status:       status,
		},
		CourseCode:  "CSC301",
		CourseTitle: "Operating Systems",
		StudentName: "Ada Obi",
	}
}

func TestRegistrationServiceRegister(t *testing.T) {
	repo := &mockRegistrationRepo{
		existsTuple: func(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error) {
			return false, nil
		},
		create: func(ctx context.Context, reg *models.CourseRegistration) error {
			require.Equal(t, models.RegistrationStatusPending, reg.Status)
			reg.ID = "reg-1"
			return nil
		},
		findDetailByID: func(ctx context.Context, id string) (*models.RegistrationDetail, error) {
			return registrationDetail(models.RegistrationStatusPending), nil
		},
	}
	courses := &mockCourseReader{findByID: func(ctx context.Context, id string) (*models.Course, error) {
		return openCourse(), nil
	}}
	svc := NewRegistrationService(repo, courses, nil, nil, nil)

	detail, err := svc.Register(context.Background(), "stu-1", RegisterCourseRequest{
		CourseID:     "course-1",
		Semester:     models.SemesterFirst,
		AcademicYear: "2025/2026",
	})
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusPending, detail.Status)
}

func TestRegistrationServiceRegisterDuplicateTuple(t *testing.T) {
	repo := &mockRegistrationRepo{
		existsTuple: func(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error) {
			return true, nil
		},
	}
	courses := &mockCourseReader{findByID: func(ctx context.Context, id string) (*models.Course, error) {
		return openCourse(), nil
	}}
	svc := NewRegistrationService(repo, courses, nil, nil, nil)

	_, err := svc.Register(context.Background(), "stu-1", RegisterCourseRequest{
		CourseID:     "course-1",
		Semester:     models.SemesterFirst,
		AcademicYear: "2025/2026",
	})
	require.ErrorIs(t, err, appErrors.ErrDuplicateRegistration)
}

func TestRegistrationServiceRegisterDuplicateRace(t *testing.T) {
	// The pre-check misses a concurrent insert; the unique index reports
	// it at create time and the caller still sees the duplicate error.
	repo := &mockRegistrationRepo{
		existsTuple: func(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error) {
			return false, nil
		},
		create: func(ctx context.Context, reg *models.CourseRegistration) error {
			return repository.ErrDuplicateTuple
		},
	}
	courses := &mockCourseReader{findByID: func(ctx context.Context, id string) (*models.Course, error) {
		return openCourse(), nil
	}}
	svc := NewRegistrationService(repo, courses, nil, nil, nil)

	_, err := svc.Register(context.Background(), "stu-1", RegisterCourseRequest{
		CourseID:     "course-1",
		Semester:     models.SemesterFirst,
		AcademicYear: "2025/2026",
	})
	require.ErrorIs(t, err, appErrors.ErrDuplicateRegistration)
}

func TestRegistrationServiceRegisterCourseClosed(t *testing.T) {
	full := openCourse()
	full.CurrentEnrollment = 2
	inactive := openCourse()
	inactive.Active = false

	cases := []struct {
		name   string
		course *models.Course
		want   error
	}{
		{"full course", full, appErrors.ErrCourseFull},
		{"inactive course", inactive, appErrors.ErrCourseInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			courses := &mockCourseReader{findByID: func(ctx context.Context, id string) (*models.Course, error) {
				return tc.course, nil
			}}
			svc := NewRegistrationService(&mockRegistrationRepo{}, courses, nil, nil, nil)
			_, err := svc.Register(context.Background(), "stu-1", RegisterCourseRequest{
				CourseID:     "course-1",
				Semester:     models.SemesterFirst,
				AcademicYear: "2025/2026",
			})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegistrationServiceApprove(t *testing.T) {
	var gotParams repository.TransitionParams
	repo := &mockRegistrationRepo{
		transition: func(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error) {
			gotParams = params
			reg := registrationDetail(models.RegistrationStatusApproved).CourseRegistration
			return &reg, nil
		},
		findDetailByID: func(ctx context.Context, id string) (*models.RegistrationDetail, error) {
			return registrationDetail(models.RegistrationStatusApproved), nil
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, nil)

	detail, err := svc.Approve(context.Background(), "reg-1", "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusApproved, detail.Status)
	require.Equal(t, models.RegistrationStatusApproved, gotParams.Target)
	require.Equal(t, "admin-1", gotParams.ActorID)
}

func TestRegistrationServiceApproveIdempotent(t *testing.T) {
	repo := &mockRegistrationRepo{
		transition: func(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error) {
			return nil, repository.ErrAlreadyInStatus
		},
		findDetailByID: func(ctx context.Context, id string) (*models.RegistrationDetail, error) {
			return registrationDetail(models.RegistrationStatusApproved), nil
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, nil)

	detail, err := svc.Approve(context.Background(), "reg-1", "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusApproved, detail.Status)
}

func TestRegistrationServiceApproveSeatRaceLost(t *testing.T) {
	repo := &mockRegistrationRepo{
		transition: func(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error) {
			return nil, repository.ErrSeatUnavailable
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, NewMetricsService())

	_, err := svc.Approve(context.Background(), "reg-1", "admin-1")
	require.ErrorIs(t, err, appErrors.ErrCourseFull)
}

func TestRegistrationServiceApproveTerminal(t *testing.T) {
	repo := &mockRegistrationRepo{
		transition: func(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error) {
			return nil, repository.ErrIllegalTransition
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, nil)

	_, err := svc.Approve(context.Background(), "reg-1", "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestRegistrationServiceRejectCarriesNotes(t *testing.T) {
	var gotParams repository.TransitionParams
	repo := &mockRegistrationRepo{
		transition: func(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error) {
			gotParams = params
			reg := registrationDetail(models.RegistrationStatusRejected).CourseRegistration
			return &reg, nil
		},
		findDetailByID: func(ctx context.Context, id string) (*models.RegistrationDetail, error) {
			return registrationDetail(models.RegistrationStatusRejected), nil
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, nil)

	_, err := svc.Reject(context.Background(), "reg-1", "admin-1", RejectRegistrationRequest{Notes: "missing prerequisite"})
	require.NoError(t, err)
	require.Equal(t, "missing prerequisite", gotParams.Notes)
	require.Equal(t, models.RegistrationStatusRejected, gotParams.Target)
}

func TestRegistrationServiceDropOwnership(t *testing.T) {
	repo := &mockRegistrationRepo{
		findByID: func(ctx context.Context, id string) (*models.CourseRegistration, error) {
			reg := registrationDetail(models.RegistrationStatusPending).CourseRegistration
			return &reg, nil
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, nil)

	_, err := svc.Drop(context.Background(), "reg-1", "someone-else")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRegistrationServiceDropNotFound(t *testing.T) {
	repo := &mockRegistrationRepo{
		findByID: func(ctx context.Context, id string) (*models.CourseRegistration, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, nil)

	_, err := svc.Drop(context.Background(), "missing", "stu-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestRegistrationServiceExportCSV(t *testing.T) {
	repo := &mockRegistrationRepo{
		list: func(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
			return []models.RegistrationDetail{*registrationDetail(models.RegistrationStatusApproved)}, 1, nil
		},
	}
	svc := NewRegistrationService(repo, &mockCourseReader{}, nil, nil, nil)

	payload, contentType, err := svc.Export(context.Background(), models.RegistrationFilter{}, "csv")
	require.NoError(t, err)
	require.Equal(t, "text/csv", contentType)
	require.Contains(t, string(payload), "CSC301")
	require.Contains(t, string(payload), "APPROVED")
}
