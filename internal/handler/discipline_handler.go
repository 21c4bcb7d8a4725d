package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/service"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
	"github.com/dabestan-dev/dabestan-api/pkg/response"
)

// DisciplineHandler exposes behavioural incident endpoints.
type DisciplineHandler struct {
	discipline *service.DisciplineService
}

// NewDisciplineHandler constructs DisciplineHandler.
func NewDisciplineHandler(discipline *service.DisciplineService) *DisciplineHandler {
	return &DisciplineHandler{discipline: discipline}
}

// List godoc
// @Summary List discipline records
// @Tags Discipline
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param severity query string false "Filter by severity"
// @Param dateFrom query string false "Start date (YYYY-MM-DD)"
// @Param dateTo query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /discipline [get]
func (h *DisciplineHandler) List(c *gin.Context) {
	var filter models.DisciplineFilter
	filter.StudentID = c.Query("studentId")
	filter.ClassID = c.Query("classId")
	if severity := models.DisciplineSeverity(c.Query("severity")); severity.Valid() {
		filter.Severity = &severity
	}
	if from, err := time.Parse("2006-01-02", c.Query("dateFrom")); err == nil {
		filter.DateFrom = &from
	}
	if to, err := time.Parse("2006-01-02", c.Query("dateTo")); err == nil {
		filter.DateTo = &to
	}
	filter.Page = queryInt(c, "page", 1)
	filter.PageSize = queryInt(c, "limit", 20)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	records, total, err := h.discipline.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get discipline record
// @Tags Discipline
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /discipline/{id} [get]
func (h *DisciplineHandler) Get(c *gin.Context) {
	record, err := h.discipline.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Record a discipline incident
// @Tags Discipline
// @Accept json
// @Produce json
// @Param payload body service.CreateDisciplineRequest true "Incident payload"
// @Success 201 {object} response.Envelope
// @Router /discipline [post]
func (h *DisciplineHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateDisciplineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident payload"))
		return
	}

	record, err := h.discipline.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Update godoc
// @Summary Edit a discipline record
// @Description Only the recorder may edit
// @Tags Discipline
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.UpdateDisciplineRequest true "Incident payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /discipline/{id} [put]
func (h *DisciplineHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateDisciplineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident payload"))
		return
	}

	record, err := h.discipline.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete a discipline record
// @Description Only the recorder may delete
// @Tags Discipline
// @Produce json
// @Param id path string true "Record ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /discipline/{id} [delete]
func (h *DisciplineHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.discipline.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
