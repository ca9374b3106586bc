package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/models"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Code        string          `json:"code" validate:"required,min=3,max=16"`
	Title       string          `json:"title" validate:"required,min=3"`
	CreditUnits int             `json:"credit_units" validate:"required,min=1,max=12"`
	Department  string          `json:"department" validate:"required"`
	Program     string          `json:"program" validate:"required"`
	Level       int             `json:"level" validate:"required,oneof=100 200 300 400 500"`
	Semester    models.Semester `json:"semester" validate:"required,oneof=FIRST SECOND"`
	MaxStudents *int            `json:"max_students" validate:"omitempty,min=1"`
}

// UpdateCourseRequest describes editable course attributes. The
// enrollment counter is intentionally absent.
type UpdateCourseRequest struct {
	Title       string          `json:"title" validate:"required,min=3"`
	CreditUnits int             `json:"credit_units" validate:"required,min=1,max=12"`
	Department  string          `json:"department" validate:"required"`
	Program     string          `json:"program" validate:"required"`
	Level       int             `json:"level" validate:"required,oneof=100 200 300 400 500"`
	Semester    models.Semester `json:"semester" validate:"required,oneof=FIRST SECOND"`
	Active      *bool           `json:"active" validate:"required"`
	MaxStudents *int            `json:"max_students" validate:"omitempty,min=1"`
}

// CourseService orchestrates administrator course management.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return courses, pagination, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course offering.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest, adminID string) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:        code,
		Title:       req.Title,
		CreditUnits: req.CreditUnits,
		Department:  req.Department,
		Program:     req.Program,
		Level:       req.Level,
		Semester:    req.Semester,
		Active:      true,
		MaxStudents: req.MaxStudents,
		CreatedBy:   adminID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update edits course attributes. Lowering max_students below the current
// enrollment is rejected rather than orphaning approved seats.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if req.MaxStudents != nil && *req.MaxStudents < course.CurrentEnrollment {
		return nil, appErrors.Clone(appErrors.ErrConflict, "max capacity cannot be below current enrollment")
	}

	course.Title = req.Title
	course.CreditUnits = req.CreditUnits
	course.Department = req.Department
	course.Program = req.Program
	course.Level = req.Level
	course.Semester = req.Semester
	course.Active = *req.Active
	course.MaxStudents = req.MaxStudents

	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}
