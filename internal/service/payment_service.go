package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/gateway"
	"github.com/noah-isme/uniportal-api/internal/models"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

// Outcome sources, recorded per applied transition for observability.
const (
	OutcomeSourceVerify  = "verify"
	OutcomeSourceWebhook = "webhook"
	OutcomeSourceSweeper = "sweeper"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByGatewayReference(ctx context.Context, reference string) (*models.Payment, error)
	AttachGatewayReference(ctx context.Context, id, gatewayReference, accessCode string) error
	ApplyOutcome(ctx context.Context, id string, outcome models.PaymentOutcome) (bool, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
}

type paymentGateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*gateway.TransactionData, error)
}

type paymentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// InitializePaymentRequest describes a payment initialization payload.
type InitializePaymentRequest struct {
	Amount      int64  `json:"amount" validate:"required,min=100"`
	PaymentType string `json:"payment_type" validate:"required,oneof=TUITION ACCEPTANCE HOSTEL LIBRARY OTHER"`
	Description string `json:"description" validate:"max=255"`
}

// InitializePaymentResponse carries the handle the browser needs to
// complete the charge on the gateway's checkout page.
type InitializePaymentResponse struct {
	Payment          *models.Payment `json:"payment"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
}

// webhookEvent is the gateway's webhook envelope.
type webhookEvent struct {
	Event string                  `json:"event"`
	Data  gateway.TransactionData `json:"data"`
}

// PaymentService reconciles payment state against the gateway. Verify
// calls, webhook deliveries and the stale-payment sweeper all converge on
// applyOutcome, so a payment reaches a terminal status exactly once no
// matter how many channels report it or in which order they arrive.
type PaymentService struct {
	repo          paymentRepository
	gateway       paymentGateway
	users         paymentUserReader
	webhookSecret string
	validator     *validator.Validate
	logger        *zap.Logger
	metrics       *MetricsService
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(repo paymentRepository, gw paymentGateway, users paymentUserReader, webhookSecret string, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:          repo,
		gateway:       gw,
		users:         users,
		webhookSecret: webhookSecret,
		validator:     validate,
		logger:        logger,
		metrics:       metrics,
	}
}

// Initialize creates a pending payment and registers it with the gateway.
// The local reference is written before the gateway is contacted, so a
// gateway failure leaves a pending row behind rather than losing money
// state; the row simply never receives a gateway reference.
func (s *PaymentService) Initialize(ctx context.Context, studentID, clientIP, userAgent string, req InitializePaymentRequest) (*InitializePaymentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	payment := &models.Payment{
		StudentID:   studentID,
		Reference:   "PAY-" + uuid.NewString(),
		Amount:      req.Amount,
		Currency:    "NGN",
		PaymentType: req.PaymentType,
		Department:  student.Department,
		Description: req.Description,
		Status:      models.PaymentStatusPending,
		IPAddress:   clientIP,
		UserAgent:   userAgent,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}

	started := time.Now()
	ack, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:     student.Email,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Reference: payment.Reference,
		Metadata: map[string]string{
			"student_id":   studentID,
			"payment_type": payment.PaymentType,
			"department":   payment.Department,
		},
	})
	s.metrics.ObserveGatewayCall("initialize", time.Since(started))
	if err != nil {
		s.logger.Error("gateway initialization failed",
			zap.String("payment_id", payment.ID),
			zap.String("reference", payment.Reference),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayError.Code, appErrors.ErrGatewayError.Status, "payment gateway unavailable")
	}

	if err := s.repo.AttachGatewayReference(ctx, payment.ID, ack.Reference, ack.AccessCode); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store gateway reference")
	}
	payment.GatewayReference = &ack.Reference
	payment.AccessCode = &ack.AccessCode

	s.logger.Info("payment initialized",
		zap.String("payment_id", payment.ID),
		zap.String("reference", payment.Reference),
		zap.String("gateway_reference", ack.Reference),
		zap.Int64("amount", payment.Amount),
	)
	return &InitializePaymentResponse{
		Payment:          payment,
		AuthorizationURL: ack.AuthorizationURL,
		AccessCode:       ack.AccessCode,
	}, nil
}

// Verify asks the gateway for the authoritative transaction status and
// applies it. Safe to call any number of times; a settled payment is
// returned as-is.
func (s *PaymentService) Verify(ctx context.Context, gatewayReference string) (*models.Payment, error) {
	payment, err := s.repo.FindByGatewayReference(ctx, gatewayReference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPaymentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status.Terminal() {
		// Settled payments never change again; skip the gateway round trip.
		return payment, nil
	}

	started := time.Now()
	tx, err := s.gateway.Verify(ctx, gatewayReference)
	s.metrics.ObserveGatewayCall("verify", time.Since(started))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayError.Code, appErrors.ErrGatewayError.Status, "failed to verify payment with gateway")
	}

	outcome, terminal := outcomeFromTransaction(tx, OutcomeSourceVerify)
	if !terminal {
		// Gateway still reports the charge in flight; nothing to apply.
		return payment, nil
	}
	return s.applyOutcome(ctx, payment, outcome)
}

// HandleWebhook processes a raw webhook delivery. The signature check is
// fail-closed: anything unverifiable is rejected before the body is
// parsed. Unknown event kinds are acknowledged and ignored so the gateway
// stops retrying them.
func (s *PaymentService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !gateway.ValidSignature(rawBody, s.webhookSecret, signature) {
		s.logger.Warn("webhook rejected: invalid signature", zap.Int("body_bytes", len(rawBody)))
		return appErrors.ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed webhook payload")
	}

	switch event.Event {
	case "charge.success", "charge.failed", "charge.abandoned":
	default:
		s.logger.Info("webhook event ignored", zap.String("event", event.Event))
		return nil
	}

	payment, err := s.repo.FindByGatewayReference(ctx, event.Data.Reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("webhook for unknown payment",
				zap.String("event", event.Event),
				zap.String("gateway_reference", event.Data.Reference),
			)
			return appErrors.ErrPaymentNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	outcome, terminal := outcomeFromEvent(event)
	if !terminal {
		return nil
	}
	_, err = s.applyOutcome(ctx, payment, outcome)
	return err
}

// ReconcileStale verifies pending payments the gateway acknowledged but
// never reported back on, applying whatever terminal state the gateway
// holds. Payments the gateway itself still shows pending are left alone.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stale, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stale payments")
	}

	settled := 0
	for _, payment := range stale {
		if payment.GatewayReference == nil {
			continue
		}
		started := time.Now()
		tx, err := s.gateway.Verify(ctx, *payment.GatewayReference)
		s.metrics.ObserveGatewayCall("verify", time.Since(started))
		if err != nil {
			s.logger.Warn("stale payment verification failed",
				zap.String("payment_id", payment.ID),
				zap.Error(err),
			)
			continue
		}
		outcome, terminal := outcomeFromTransaction(tx, OutcomeSourceSweeper)
		if !terminal {
			continue
		}
		p := payment
		if _, err := s.applyOutcome(ctx, &p, outcome); err != nil {
			s.logger.Warn("stale payment reconciliation failed",
				zap.String("payment_id", payment.ID),
				zap.Error(err),
			)
			continue
		}
		settled++
	}
	if settled > 0 {
		s.logger.Info("stale payments reconciled", zap.Int("count", settled), zap.Int("scanned", len(stale)))
	}
	return settled, nil
}

// Get returns a payment, enforcing student ownership for non-admin access.
func (s *PaymentService) Get(ctx context.Context, id, requesterID string, requesterRole models.UserRole) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPaymentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if requesterRole != models.RoleAdmin && payment.StudentID != requesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another student")
	}
	return payment, nil
}

// List returns payments with pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// applyOutcome is the single reconciliation point. The repository's
// conditional update decides who wins; this layer classifies the losers.
// A repeat of the recorded outcome is an idempotent no-op, while a
// conflicting report against a settled payment is surfaced as an anomaly
// but never rewrites the row.
func (s *PaymentService) applyOutcome(ctx context.Context, payment *models.Payment, outcome models.PaymentOutcome) (*models.Payment, error) {
	if payment.Status.Terminal() {
		return s.resolveSettled(ctx, payment, outcome)
	}

	applied, err := s.repo.ApplyOutcome(ctx, payment.ID, outcome)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply payment outcome")
	}

	current, err := s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload payment")
	}

	if applied {
		s.metrics.RecordPaymentOutcome(string(outcome.Status), outcome.Source)
		s.logger.Info("payment outcome applied",
			zap.String("payment_id", payment.ID),
			zap.String("status", string(outcome.Status)),
			zap.String("source", outcome.Source),
		)
		return current, nil
	}
	// Lost the race against another channel; classify against whatever won.
	return s.resolveSettled(ctx, current, outcome)
}

func (s *PaymentService) resolveSettled(ctx context.Context, payment *models.Payment, outcome models.PaymentOutcome) (*models.Payment, error) {
	if payment.Status == outcome.Status {
		s.logger.Debug("duplicate payment outcome ignored",
			zap.String("payment_id", payment.ID),
			zap.String("status", string(outcome.Status)),
			zap.String("source", outcome.Source),
		)
		return payment, nil
	}

	s.metrics.RecordPaymentAnomaly()
	s.logger.Error("conflicting payment outcome after settlement",
		zap.String("payment_id", payment.ID),
		zap.String("recorded_status", string(payment.Status)),
		zap.String("reported_status", string(outcome.Status)),
		zap.String("source", outcome.Source),
	)
	detail, _ := json.Marshal(map[string]string{
		"recorded_status": string(payment.Status),
		"reported_status": string(outcome.Status),
		"source":          outcome.Source,
	})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		Action:     models.AuditActionPaymentAnomaly,
		Resource:   "payments",
		ResourceID: &payment.ID,
		NewValues:  detail,
	}); err != nil {
		s.logger.Warn("failed to record payment anomaly audit log", zap.Error(err))
	}
	return payment, nil
}

// outcomeFromTransaction maps a gateway transaction record to a terminal
// outcome. The boolean is false while the gateway still reports the
// charge in flight.
func outcomeFromTransaction(tx *gateway.TransactionData, source string) (models.PaymentOutcome, bool) {
	var status models.PaymentStatus
	switch tx.Status {
	case "success":
		status = models.PaymentStatusSuccessful
	case "failed":
		status = models.PaymentStatusFailed
	case "abandoned":
		status = models.PaymentStatusAbandoned
	default:
		return models.PaymentOutcome{}, false
	}

	outcome := models.PaymentOutcome{
		Status:    status,
		Channel:   tx.Channel,
		IPAddress: tx.IPAddress,
		Source:    source,
	}
	if status != models.PaymentStatusSuccessful {
		outcome.FailureReason = tx.GatewayResponse
	}
	if tx.PaidAt != nil {
		if ts, err := time.Parse(time.RFC3339, *tx.PaidAt); err == nil {
			outcome.PaidAt = &ts
		}
	}
	return outcome, true
}

func outcomeFromEvent(event webhookEvent) (models.PaymentOutcome, bool) {
	switch event.Event {
	case "charge.success":
		outcome, ok := outcomeFromTransaction(&event.Data, OutcomeSourceWebhook)
		if !ok {
			// Event kind and payload disagree; trust the event kind.
			outcome = models.PaymentOutcome{Status: models.PaymentStatusSuccessful, Source: OutcomeSourceWebhook}
		}
		outcome.Status = models.PaymentStatusSuccessful
		outcome.FailureReason = ""
		return outcome, true
	case "charge.failed":
		return models.PaymentOutcome{
			Status:        models.PaymentStatusFailed,
			Channel:       event.Data.Channel,
			IPAddress:     event.Data.IPAddress,
			FailureReason: failureReason(event.Data.GatewayResponse, "charge failed"),
			Source:        OutcomeSourceWebhook,
		}, true
	case "charge.abandoned":
		return models.PaymentOutcome{
			Status:        models.PaymentStatusAbandoned,
			FailureReason: failureReason(event.Data.GatewayResponse, "charge abandoned"),
			Source:        OutcomeSourceWebhook,
		}, true
	default:
		return models.PaymentOutcome{}, false
	}
}

func failureReason(gatewayResponse, fallback string) string {
	if gatewayResponse != "" {
		return gatewayResponse
	}
	return fallback
}
