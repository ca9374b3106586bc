package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uniportal-api/internal/models"
)

// ErrGatewayRefTaken signals the unique index on gateway_reference
// rejected an attach, meaning another payment row already owns it.
var ErrGatewayRefTaken = errors.New("gateway reference already assigned")

// PaymentRepository handles persistence of payments and owns the
// conditional update that makes outcome application idempotent.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, student_id, reference, gateway_reference, access_code, amount, currency, payment_type, department, description, status, channel, ip_address, user_agent, failure_reason, paid_at, outcome_applied_at, created_at, updated_at`

// Create persists a new pending payment row.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	const query = `INSERT INTO payments (id, student_id, reference, gateway_reference, access_code, amount, currency, payment_type, department, description, status, channel, ip_address, user_agent, failure_reason, paid_at, outcome_applied_at, created_at, updated_at)
        VALUES (:id, :student_id, :reference, :gateway_reference, :access_code, :amount, :currency, :payment_type, :department, :description, :status, :channel, :ip_address, :user_agent, :failure_reason, :paid_at, :outcome_applied_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID returns a payment by its identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByGatewayReference returns a payment by the reference the gateway
// acknowledged at initialization.
func (r *PaymentRepository) FindByGatewayReference(ctx context.Context, reference string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE gateway_reference = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, reference); err != nil {
		return nil, err
	}
	return &payment, nil
}

// AttachGatewayReference stores the gateway acknowledgement exactly once.
// The WHERE guard keeps an already-assigned reference immutable.
func (r *PaymentRepository) AttachGatewayReference(ctx context.Context, id, gatewayReference, accessCode string) error {
	const query = `UPDATE payments SET gateway_reference = $2, access_code = $3, updated_at = $4
        WHERE id = $1 AND gateway_reference IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, gatewayReference, accessCode, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return ErrGatewayRefTaken
		}
		return fmt.Errorf("attach gateway reference: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrGatewayRefTaken
	}
	return nil
}

// ApplyOutcome moves a pending payment to the terminal state carried by
// the outcome. The `status = 'PENDING'` guard is what makes application
// idempotent and success sticky: once any terminal state is written, every
// later attempt affects zero rows no matter which path (verify, webhook,
// sweeper) it arrives from. Returns true when this call performed the
// transition.
func (r *PaymentRepository) ApplyOutcome(ctx context.Context, id string, outcome models.PaymentOutcome) (bool, error) {
	now := time.Now().UTC()
	const query = `UPDATE payments SET status = $2, paid_at = $3, channel = $4, ip_address = $5, failure_reason = $6,
        outcome_applied_at = $7, updated_at = $7
        WHERE id = $1 AND status = $8`
	res, err := r.db.ExecContext(ctx, query,
		id, outcome.Status, outcome.PaidAt, outcome.Channel, outcome.IPAddress, outcome.FailureReason,
		now, models.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("apply payment outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply payment outcome rows: %w", err)
	}
	return n == 1, nil
}

// ListStalePending returns pending payments older than the cutoff, for
// the reconciliation sweeper. Only rows the gateway acknowledged are
// eligible; a row without a gateway reference has nothing to verify.
func (r *PaymentRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM payments
        WHERE status = $1 AND gateway_reference IS NOT NULL AND created_at < $2
        ORDER BY created_at ASC LIMIT %d`, paymentColumns, limit)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, models.PaymentStatusPending, olderThan); err != nil {
		return nil, fmt.Errorf("list stale pending payments: %w", err)
	}
	return payments, nil
}

// List returns payments filtered by the provided criteria.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := "FROM payments"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.PaymentType != "" {
		conditions = append(conditions, fmt.Sprintf("payment_type = $%d", len(args)+1))
		args = append(args, filter.PaymentType)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"amount":     "amount",
		"paid_at":    "paid_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", paymentColumns, base+clause, orderBy, order, size, offset)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}
