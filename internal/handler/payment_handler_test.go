package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uniportal-api/internal/gateway"
	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/internal/service"
)

const webhookSecret = "whsec_handler_test"

type stubPaymentRepo struct {
	payments map[string]*models.Payment
}

func (s *stubPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	s.payments[payment.ID] = payment
	return nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	if p, ok := s.payments[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubPaymentRepo) FindByGatewayReference(ctx context.Context, reference string) (*models.Payment, error) {
	for _, p := range s.payments {
		if p.GatewayReference != nil && *p.GatewayReference == reference {
			copied := *p
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubPaymentRepo) AttachGatewayReference(ctx context.Context, id, gatewayReference, accessCode string) error {
	return nil
}

func (s *stubPaymentRepo) ApplyOutcome(ctx context.Context, id string, outcome models.PaymentOutcome) (bool, error) {
	p, ok := s.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = outcome.Status
	p.Channel = outcome.Channel
	now := time.Now().UTC()
	p.OutcomeAppliedAt = &now
	return true, nil
}

func (s *stubPaymentRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	return nil, 0, nil
}

type stubGateway struct{}

func (stubGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResponse, error) {
	return &gateway.InitializeResponse{Reference: req.Reference, AccessCode: "ac_1", AuthorizationURL: "https://checkout.example"}, nil
}

func (stubGateway) Verify(ctx context.Context, reference string) (*gateway.TransactionData, error) {
	return &gateway.TransactionData{Status: "success", Reference: reference}, nil
}

type stubUsers struct{}

func (stubUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Email: "ada@uni.edu.ng", Department: "Computer Science"}, nil
}

func (stubUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func newWebhookRouter(repo *stubPaymentRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewPaymentService(repo, stubGateway{}, stubUsers{}, webhookSecret, nil, nil, nil)
	h := NewPaymentHandler(svc)
	router := gin.New()
	router.POST("/api/v1/payments/webhook", h.Webhook)
	return router
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func chargeSuccessBody(t *testing.T, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data":  map[string]interface{}{"status": "success", "reference": reference, "channel": "card"},
	})
	require.NoError(t, err)
	return body
}

func seededRepo(gwRef string) *stubPaymentRepo {
	return &stubPaymentRepo{payments: map[string]*models.Payment{
		"pay-1": {
			ID:               "pay-1",
			StudentID:        "stu-1",
			Reference:        "PAY-1",
			GatewayReference: &gwRef,
			Status:           models.PaymentStatusPending,
		},
	}}
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("x-uniportal-signature", signature)
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookInvalidSignatureRejected(t *testing.T) {
	repo := seededRepo("GW-1")
	router := newWebhookRouter(repo)

	body := chargeSuccessBody(t, "GW-1")
	rec := postWebhook(router, body, "not-a-signature")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, models.PaymentStatusPending, repo.payments["pay-1"].Status)
}

func TestWebhookMissingSignatureRejected(t *testing.T) {
	repo := seededRepo("GW-1")
	router := newWebhookRouter(repo)

	rec := postWebhook(router, chargeSuccessBody(t, "GW-1"), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookDuplicateDeliveryAcknowledged(t *testing.T) {
	repo := seededRepo("GW-1")
	router := newWebhookRouter(repo)

	body := chargeSuccessBody(t, "GW-1")
	first := postWebhook(router, body, sign(body))
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, models.PaymentStatusSuccessful, repo.payments["pay-1"].Status)

	second := postWebhook(router, body, sign(body))
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, models.PaymentStatusSuccessful, repo.payments["pay-1"].Status)
}

func TestWebhookUnknownReferenceNotFound(t *testing.T) {
	router := newWebhookRouter(&stubPaymentRepo{payments: map[string]*models.Payment{}})

	body := chargeSuccessBody(t, "GW-404")
	rec := postWebhook(router, body, sign(body))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	repo := seededRepo("GW-1")
	router := newWebhookRouter(repo)

	body, err := json.Marshal(map[string]interface{}{
		"event": "subscription.create",
		"data":  map[string]interface{}{"reference": "GW-1"},
	})
	require.NoError(t, err)

	rec := postWebhook(router, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.PaymentStatusPending, repo.payments["pay-1"].Status)
}
