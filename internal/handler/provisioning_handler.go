package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/service"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
	"github.com/dabestan-dev/dabestan-api/pkg/response"
)

// ProvisioningHandler exposes the bulk account creation endpoints.
type ProvisioningHandler struct {
	provisioning *service.ProvisioningService
}

// NewProvisioningHandler constructs ProvisioningHandler.
func NewProvisioningHandler(provisioning *service.ProvisioningService) *ProvisioningHandler {
	return &ProvisioningHandler{provisioning: provisioning}
}

// BulkProvision godoc
// @Summary Bulk create accounts
// @Description Create a batch of accounts of one role; per-row failures are rolled back and reported while the batch continues
// @Tags Provisioning
// @Accept json
// @Produce json
// @Param payload body models.BulkProvisionRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /admin/provisioning/bulk [post]
func (h *ProvisioningHandler) BulkProvision(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.BulkProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid provisioning payload"))
		return
	}

	result, err := h.provisioning.BulkProvision(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// CreateTeacher godoc
// @Summary Create a teacher account
// @Description Provision a single teacher with its instructor record
// @Tags Provisioning
// @Accept json
// @Produce json
// @Param payload body models.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/teachers [post]
func (h *ProvisioningHandler) CreateTeacher(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}

	account, err := h.provisioning.CreateTeacher(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, account)
}
