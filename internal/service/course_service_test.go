package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uniportal-api/internal/models"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

type mockCourseRepo struct {
	findByID   func(ctx context.Context, id string) (*models.Course, error)
	findByCode func(ctx context.Context, code string) (*models.Course, error)
	list       func(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	create     func(ctx context.Context, course *models.Course) error
	update     func(ctx context.Context, course *models.Course) error
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return m.findByID(ctx, id)
}

func (m *mockCourseRepo) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	return m.findByCode(ctx, code)
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	return m.list(ctx, filter)
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	return m.create(ctx, course)
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	return m.update(ctx, course)
}

func validCreateRequest() CreateCourseRequest {
	return CreateCourseRequest{
		Code:        "csc301",
		Title:       "Operating Systems",
		CreditUnits: 3,
		Department:  "Computer Science",
		Program:     "BSc",
		Level:       300,
		Semester:    models.SemesterFirst,
		MaxStudents: intPtr(30),
	}
}

func TestCourseServiceCreateUppercasesCode(t *testing.T) {
	var created *models.Course
	repo := &mockCourseRepo{
		findByCode: func(ctx context.Context, code string) (*models.Course, error) {
			return nil, sql.ErrNoRows
		},
		create: func(ctx context.Context, course *models.Course) error {
			created = course
			return nil
		},
	}
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), validCreateRequest(), "admin-1")
	require.NoError(t, err)
	require.Equal(t, "CSC301", course.Code)
	require.True(t, course.Active)
	require.Equal(t, "admin-1", created.CreatedBy)
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	repo := &mockCourseRepo{
		findByCode: func(ctx context.Context, code string) (*models.Course, error) {
			return &models.Course{ID: "course-1", Code: code}, nil
		},
	}
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), validCreateRequest(), "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCourseServiceCreateRejectsBadLevel(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, nil)

	req := validCreateRequest()
	req.Level = 350
	_, err := svc.Create(context.Background(), req, "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCourseServiceUpdateCapacityBelowEnrollment(t *testing.T) {
	repo := &mockCourseRepo{
		findByID: func(ctx context.Context, id string) (*models.Course, error) {
			return &models.Course{ID: id, Code: "CSC301", CurrentEnrollment: 25}, nil
		},
	}
	svc := NewCourseService(repo, nil, nil)

	active := true
	_, err := svc.Update(context.Background(), "course-1", UpdateCourseRequest{
		Title:       "Operating Systems",
		CreditUnits: 3,
		Department:  "Computer Science",
		Program:     "BSc",
		Level:       300,
		Semester:    models.SemesterFirst,
		Active:      &active,
		MaxStudents: intPtr(20),
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCourseServiceGetNotFound(t *testing.T) {
	repo := &mockCourseRepo{
		findByID: func(ctx context.Context, id string) (*models.Course, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, appErrors.ErrCourseNotFound)
}
