package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/internal/repository"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
	"github.com/noah-isme/uniportal-api/pkg/export"
)

type registrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseRegistration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	ExistsTuple(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error)
	Create(ctx context.Context, reg *models.CourseRegistration) error
	Transition(ctx context.Context, params repository.TransitionParams) (*models.CourseRegistration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// RegisterCourseRequest describes a student registration request.
type RegisterCourseRequest struct {
	CourseID     string          `json:"course_id" validate:"required"`
	Semester     models.Semester `json:"semester" validate:"required,oneof=FIRST SECOND"`
	AcademicYear string          `json:"academic_year" validate:"required,len=9"`
}

// RejectRegistrationRequest carries the admin's rejection notes.
type RejectRegistrationRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

// RegistrationService orchestrates the course registration ledger. Every
// status change funnels through the repository's single transactional
// transition so the enrollment counter can never drift from the set of
// approved registrations.
type RegistrationService struct {
	repo      registrationRepository
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(repo registrationRepository, courses courseReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{repo: repo, courses: courses, validator: validate, logger: logger, metrics: metrics}
}

// Register creates a pending registration for a student. Capacity is
// checked here for an early answer, but the binding check happens again
// at approval time; the unique tuple index backs the duplicate check.
func (s *RegistrationService) Register(ctx context.Context, studentID string, req RegisterCourseRequest) (*models.RegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.ErrCourseInactive
	}
	if !course.HasCapacity() {
		return nil, appErrors.ErrCourseFull
	}

	exists, err := s.repo.ExistsTuple(ctx, studentID, req.CourseID, req.Semester, req.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration")
	}
	if exists {
		return nil, appErrors.ErrDuplicateRegistration
	}

	reg := &models.CourseRegistration{
		StudentID:    studentID,
		CourseID:     req.CourseID,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		Status:       models.RegistrationStatusPending,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		if errors.Is(err, repository.ErrDuplicateTuple) {
			return nil, appErrors.ErrDuplicateRegistration
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID),
		zap.String("student_id", studentID),
		zap.String("course_code", course.Code),
	)
	return s.detail(ctx, reg.ID)
}

// Approve transitions a pending registration to approved, claiming a
// seat. Approving an already-approved registration is an idempotent
// no-op; losing the capacity re-check surfaces as CourseFull.
func (s *RegistrationService) Approve(ctx context.Context, registrationID, adminID string) (*models.RegistrationDetail, error) {
	_, err := s.repo.Transition(ctx, repository.TransitionParams{
		RegistrationID: registrationID,
		Target:         models.RegistrationStatusApproved,
		ActorID:        adminID,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		case errors.Is(err, repository.ErrAlreadyInStatus):
			s.logger.Warn("registration already approved", zap.String("registration_id", registrationID), zap.String("admin_id", adminID))
			return s.detail(ctx, registrationID)
		case errors.Is(err, repository.ErrSeatUnavailable):
			s.metrics.RecordSeatRaceLost()
			return nil, appErrors.ErrCourseFull
		case errors.Is(err, repository.ErrIllegalTransition):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration cannot be approved from its current status")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve registration")
		}
	}

	s.logger.Info("registration approved", zap.String("registration_id", registrationID), zap.String("admin_id", adminID))
	return s.detail(ctx, registrationID)
}

// Reject transitions a registration to rejected, releasing the seat when
// the prior status was approved.
func (s *RegistrationService) Reject(ctx context.Context, registrationID, adminID string, req RejectRegistrationRequest) (*models.RegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	_, err := s.repo.Transition(ctx, repository.TransitionParams{
		RegistrationID: registrationID,
		Target:         models.RegistrationStatusRejected,
		ActorID:        adminID,
		Notes:          req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		case errors.Is(err, repository.ErrAlreadyInStatus):
			return s.detail(ctx, registrationID)
		case errors.Is(err, repository.ErrIllegalTransition):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration cannot be rejected from its current status")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject registration")
		}
	}

	s.logger.Info("registration rejected", zap.String("registration_id", registrationID), zap.String("admin_id", adminID))
	return s.detail(ctx, registrationID)
}

// Drop lets a student withdraw their own registration.
func (s *RegistrationService) Drop(ctx context.Context, registrationID, studentID string) (*models.RegistrationDetail, error) {
	reg, err := s.repo.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "registration belongs to another student")
	}

	_, err = s.repo.Transition(ctx, repository.TransitionParams{
		RegistrationID: registrationID,
		Target:         models.RegistrationStatusDropped,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyInStatus):
			return s.detail(ctx, registrationID)
		case errors.Is(err, repository.ErrIllegalTransition):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration cannot be dropped from its current status")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop registration")
		}
	}

	s.logger.Info("registration dropped", zap.String("registration_id", registrationID), zap.String("student_id", studentID))
	return s.detail(ctx, registrationID)
}

// List returns registrations with pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	registrations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
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
	return registrations, pagination, nil
}

// Export renders the filtered registrations into the requested format.
func (s *RegistrationService) Export(ctx context.Context, filter models.RegistrationFilter, format string) ([]byte, string, error) {
	filter.Page = 1
	filter.PageSize = 100
	registrations, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrations for export")
	}

	dataset := export.Dataset{
		Headers: []string{"Course", "Title", "Student", "Semester", "Year", "Status", "Registered At"},
	}
	for _, reg := range registrations {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Course":        reg.CourseCode,
			"Title":         reg.CourseTitle,
			"Student":       reg.StudentName,
			"Semester":      string(reg.Semester),
			"Year":          reg.AcademicYear,
			"Status":        string(reg.Status),
			"Registered At": reg.RegisteredAt.Format("2006-01-02 15:04"),
		})
	}

	switch format {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "Course Registrations")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %s", strconv.Quote(format)))
	}
}

func (s *RegistrationService) detail(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration detail")
	}
	return detail, nil
}
