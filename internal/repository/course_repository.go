package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uniportal-api/internal/models"
)

// CourseRepository handles persistence of courses, including the seat
// counter that backs capacity enforcement.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, code, title, credit_units, department, program, level, semester, active, max_students, current_enrollment, created_by, created_at, updated_at`

// FindByID returns a course by its identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE code = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses"
	var conditions []string
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.Level > 0 {
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(title) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "code",
		"title":      "title",
		"level":      "level",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", courseColumns, base+clause, orderBy, order, size, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, title, credit_units, department, program, level, semester, active, max_students, current_enrollment, created_by, created_at, updated_at)
        VALUES (:id, :code, :title, :credit_units, :department, :program, :level, :semester, :active, :max_students, :current_enrollment, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists editable course attributes. The enrollment counter is
// deliberately excluded; it only moves through the seat queries below.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, credit_units = :credit_units, department = :department,
        program = :program, level = :level, semester = :semester, active = :active, max_students = :max_students,
        updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// reserveSeatQuery increments the enrollment counter only while the course
// is active and below capacity. The WHERE clause is the capacity guard:
// two racing approvals for the last seat resolve inside the database, and
// the loser sees zero rows affected.
const reserveSeatQuery = `UPDATE courses SET current_enrollment = current_enrollment + 1, updated_at = $2
        WHERE id = $1 AND active = TRUE AND (max_students IS NULL OR current_enrollment < max_students)`

// releaseSeatQuery decrements the counter without ever letting it go
// negative, even under replayed or racing releases.
const releaseSeatQuery = `UPDATE courses SET current_enrollment = current_enrollment - 1, updated_at = $2
        WHERE id = $1 AND current_enrollment > 0`

// TryReserveSeat atomically claims one seat on the course. It returns
// false when the course is inactive or already at capacity.
func (r *CourseRepository) TryReserveSeat(ctx context.Context, courseID string) (bool, error) {
	return execSeatQuery(ctx, r.db, reserveSeatQuery, courseID)
}

// ReleaseSeat atomically returns one seat to the course.
func (r *CourseRepository) ReleaseSeat(ctx context.Context, courseID string) (bool, error) {
	return execSeatQuery(ctx, r.db, releaseSeatQuery, courseID)
}

// execer covers both *sqlx.DB and *sqlx.Tx so the seat queries can run
// standalone or inside a registration transition transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func execSeatQuery(ctx context.Context, db execer, query, courseID string) (bool, error) {
	res, err := db.ExecContext(ctx, query, courseID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("seat update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seat update rows: %w", err)
	}
	return n == 1, nil
}
