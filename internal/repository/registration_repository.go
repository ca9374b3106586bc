package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uniportal-api/internal/models"
)

// Sentinel outcomes for registration transitions. The service layer maps
// these onto the HTTP-aware error taxonomy.
var (
	// ErrDuplicateTuple signals the unique (student, course, semester,
	// academic year) index rejected an insert.
	ErrDuplicateTuple = errors.New("registration tuple already exists")
	// ErrSeatUnavailable signals the conditional seat reservation found
	// the course inactive or at capacity.
	ErrSeatUnavailable = errors.New("no seat available on course")
	// ErrIllegalTransition signals the requested status change is not in
	// the transition table for the row's current status.
	ErrIllegalTransition = errors.New("illegal registration transition")
	// ErrAlreadyInStatus signals the row already carries the target
	// status; callers treat this as an idempotent no-op.
	ErrAlreadyInStatus = errors.New("registration already in target status")
)

const uniqueViolationCode = "23505"

// RegistrationRepository handles persistence of course registrations and
// owns every status transition together with its seat-counter side effect.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, student_id, course_id, semester, academic_year, status, registered_at, approved_at, approved_by, notes`

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.CourseRegistration, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_registrations WHERE id = $1`, registrationColumns)
	var reg models.CourseRegistration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindDetailByID returns a registration with course and student context.
func (r *RegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	const query = `SELECT r.id, r.student_id, r.course_id, r.semester, r.academic_year, r.status, r.registered_at, r.approved_at, r.approved_by, r.notes,
        c.code AS course_code, c.title AS course_title, u.full_name AS student_name
        FROM course_registrations r
        LEFT JOIN courses c ON c.id = r.course_id
        LEFT JOIN users u ON u.id = r.student_id
        WHERE r.id = $1`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsTuple checks whether any registration in any status already holds
// the unique tuple.
func (r *RegistrationRepository) ExistsTuple(ctx context.Context, studentID, courseID string, semester models.Semester, academicYear string) (bool, error) {
	const query = `SELECT 1 FROM course_registrations WHERE student_id = $1 AND course_id = $2 AND semester = $3 AND academic_year = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, semester, academicYear); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check registration tuple: %w", err)
	}
	return true, nil
}

// Create persists a new pending registration. The unique index on the
// tuple is the authoritative duplicate guard; a violation surfaces as
// ErrDuplicateTuple regardless of any earlier existence pre-check.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.CourseRegistration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now().UTC()
	}
	if reg.Status == "" {
		reg.Status = models.RegistrationStatusPending
	}
	const query = `INSERT INTO course_registrations (id, student_id, course_id, semester, academic_year, status, registered_at, approved_at, approved_by, notes)
        VALUES (:id, :student_id, :course_id, :semester, :academic_year, :status, :registered_at, :approved_at, :approved_by, :notes)`
	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return ErrDuplicateTuple
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// TransitionParams carries the inputs for a status transition.
type TransitionParams struct {
	RegistrationID string
	Target         models.RegistrationStatus
	ActorID        string
	Notes          string
}

// Transition applies a status change and its seat delta as one atomic
// unit. The registration row is locked FOR UPDATE so concurrent
// transitions on the same registration serialize; the seat delta runs as
// a conditional update on the courses row inside the same transaction, so
// a lost capacity race rolls the status change back too.
func (r *RegistrationRepository) Transition(ctx context.Context, params TransitionParams) (reg *models.CourseRegistration, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.CourseRegistration
	lockQuery := fmt.Sprintf(`SELECT %s FROM course_registrations WHERE id = $1 FOR UPDATE`, registrationColumns)
	if err = tx.GetContext(ctx, &current, lockQuery, params.RegistrationID); err != nil {
		return nil, err
	}

	if current.Status == params.Target {
		err = ErrAlreadyInStatus
		return nil, err
	}
	if !current.Status.CanTransition(params.Target) {
		err = ErrIllegalTransition
		return nil, err
	}

	switch delta := current.Status.SeatDelta(params.Target); delta {
	case +1:
		var reserved bool
		if reserved, err = execSeatQuery(ctx, tx, reserveSeatQuery, current.CourseID); err != nil {
			return nil, err
		}
		if !reserved {
			err = ErrSeatUnavailable
			return nil, err
		}
	case -1:
		if _, err = execSeatQuery(ctx, tx, releaseSeatQuery, current.CourseID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	current.Status = params.Target
	if params.Notes != "" {
		current.Notes = params.Notes
	}
	if params.Target == models.RegistrationStatusApproved {
		current.ApprovedAt = &now
		if params.ActorID != "" {
			actor := params.ActorID
			current.ApprovedBy = &actor
		}
	}

	const updateQuery = `UPDATE course_registrations SET status = $2, approved_at = $3, approved_by = $4, notes = $5 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, current.ID, current.Status, current.ApprovedAt, current.ApprovedBy, current.Notes); err != nil {
		return nil, fmt.Errorf("update registration status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return &current, nil
}

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM course_registrations r
LEFT JOIN courses c ON c.id = r.course_id
LEFT JOIN users u ON u.id = r.student_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("r.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("r.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("r.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("c.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"registered_at": "r.registered_at",
		"course_code":   "c.code",
		"student_name":  "u.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.registered_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.student_id, r.course_id, r.semester, r.academic_year, r.status, r.registered_at, r.approved_at, r.approved_by, r.notes,
        c.code AS course_code, c.title AS course_title, u.full_name AS student_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}
