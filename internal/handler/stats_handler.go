package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uniportal-api/internal/service"
	"github.com/noah-isme/uniportal-api/pkg/response"
)

// StatsHandler serves the cached admin dashboards.
type StatsHandler struct {
	service *service.StatsService
}

// NewStatsHandler creates a new handler.
func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

// Registrations godoc
// @Summary Registration dashboard
// @Description Aggregated registration counts and course fill rates (admin only)
// @Tags Stats
// @Produce json
// @Param academic_year query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /stats/registrations [get]
func (h *StatsHandler) Registrations(c *gin.Context) {
	dashboard, err := h.service.RegistrationDashboard(c.Request.Context(), c.Query("academic_year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Payments godoc
// @Summary Payment dashboard
// @Description Aggregated payment counts and totals (admin only)
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/payments [get]
func (h *StatsHandler) Payments(c *gin.Context) {
	dashboard, err := h.service.PaymentDashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}
