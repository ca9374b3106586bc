package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uniportal-api/internal/models"
)

// StatsRepository exposes read-only aggregate queries for the admin
// dashboard. These views sit outside the consistency-critical path and
// may lag the ledger slightly.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository instantiates the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// RegistrationsByGroup aggregates registration counts per status bucket
// grouped by department, program, level and semester.
func (r *StatsRepository) RegistrationsByGroup(ctx context.Context, academicYear string) ([]models.RegistrationStatRow, error) {
	const query = `SELECT c.department, c.program, c.level, r.semester,
        SUM(CASE WHEN r.status = 'PENDING' THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN r.status = 'APPROVED' THEN 1 ELSE 0 END) AS approved,
        SUM(CASE WHEN r.status = 'REJECTED' THEN 1 ELSE 0 END) AS rejected,
        SUM(CASE WHEN r.status = 'DROPPED' THEN 1 ELSE 0 END) AS dropped,
        COUNT(*) AS total
        FROM course_registrations r
        JOIN courses c ON c.id = r.course_id
        WHERE ($1 = '' OR r.academic_year = $1)
        GROUP BY c.department, c.program, c.level, r.semester
        ORDER BY c.department, c.program, c.level`
	var rows []models.RegistrationStatRow
	if err := r.db.SelectContext(ctx, &rows, query, academicYear); err != nil {
		return nil, fmt.Errorf("query registration stats: %w", err)
	}
	return rows, nil
}

// CourseFillRates reports enrollment against capacity for limited courses.
func (r *StatsRepository) CourseFillRates(ctx context.Context) ([]models.CourseFillRow, error) {
	const query = `SELECT id AS course_id, code, title, max_students, current_enrollment,
        CASE WHEN max_students IS NULL OR max_students = 0 THEN 0
        ELSE current_enrollment::DECIMAL / max_students END AS fill_rate
        FROM courses WHERE active = TRUE
        ORDER BY fill_rate DESC`
	var rows []models.CourseFillRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("query course fill rates: %w", err)
	}
	return rows, nil
}

// PaymentsByGroup aggregates payment counts and totals by department,
// payment type and status.
func (r *StatsRepository) PaymentsByGroup(ctx context.Context) ([]models.PaymentStatRow, error) {
	const query = `SELECT department, payment_type, status,
        COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount
        FROM payments
        GROUP BY department, payment_type, status
        ORDER BY department, payment_type, status`
	var rows []models.PaymentStatRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("query payment stats: %w", err)
	}
	return rows, nil
}
