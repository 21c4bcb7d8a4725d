package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dabestan-dev/dabestan-api/internal/service"
	"github.com/dabestan-dev/dabestan-api/pkg/response"
)

// MetricsHandler serves the Prometheus scrape endpoint and an
// admin-facing JSON snapshot of the same counters.
type MetricsHandler struct {
	metrics *service.MetricsService
}

func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus returns the scrape handler wrapped for gin.
func (h *MetricsHandler) Prometheus() gin.HandlerFunc {
	return gin.WrapH(h.metrics.Handler())
}

// Snapshot godoc
// @Summary Runtime metrics snapshot
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope{data=models.SystemMetrics}
// @Router /admin/metrics [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	snapshot := h.metrics.Snapshot()
	response.JSON(c, http.StatusOK, snapshot, nil)
}
