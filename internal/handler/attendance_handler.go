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

const maxNoteSize = 5 << 20

// AttendanceHandler exposes attendance session and justification endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// RecordSession godoc
// @Summary Reconcile one attendance session
// @Description Replace the stored snapshot for (class subject, date, lesson period); only absent and late entries are persisted
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RecordSessionRequest true "Session payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/sessions [put]
func (h *AttendanceHandler) RecordSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RecordSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}

	if err := h.attendance.RecordSession(c.Request.Context(), claims, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetSession godoc
// @Summary Load one attendance session snapshot
// @Tags Attendance
// @Produce json
// @Param classSubjectId query string true "Class subject"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param lessonPeriod query int true "Lesson period"
// @Success 200 {object} response.Envelope
// @Router /attendance/sessions [get]
func (h *AttendanceHandler) GetSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	key := models.AttendanceSessionKey{
		ClassSubjectID: c.Query("classSubjectId"),
		Date:           date,
		LessonPeriod:   queryInt(c, "lessonPeriod", 0),
	}
	if key.ClassSubjectID == "" || key.LessonPeriod < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classSubjectId and lessonPeriod are required"))
		return
	}

	records, err := h.attendance.GetSession(c.Request.Context(), claims, key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param classSubjectId query string false "Filter by class subject"
// @Param classId query string false "Filter by class"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param dateFrom query string false "Start date (YYYY-MM-DD)"
// @Param dateTo query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.ClassSubjectID = c.Query("classSubjectId")
	filter.ClassID = c.Query("classId")
	filter.StudentID = c.Query("studentId")
	if status := models.AttendanceStatus(c.Query("status")); status.Valid() {
		filter.Status = &status
	}
	if from, err := time.Parse("2006-01-02", c.Query("dateFrom")); err == nil {
		filter.DateFrom = &from
	}
	if to, err := time.Parse("2006-01-02", c.Query("dateTo")); err == nil {
		filter.DateTo = &to
	}
	if period := queryInt(c, "lessonPeriod", 0); period > 0 {
		filter.LessonPeriod = &period
	}
	filter.Page = queryInt(c, "page", 1)
	filter.PageSize = queryInt(c, "limit", 20)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	records, total, err := h.attendance.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination(filter.Page, filter.PageSize, total))
}

// Justify godoc
// @Summary Justify an absence
// @Description Guardian-only; multipart form with justification text and an optional medical note file
// @Tags Attendance
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Attendance record ID"
// @Param justification formData string true "Justification text"
// @Param medical_note formData file false "Medical note"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/{id}/justification [post]
func (h *AttendanceHandler) Justify(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req := service.JustifyRequest{Justification: c.PostForm("justification")}

	fileHeader, err := c.FormFile("medical_note")
	if err != nil && err != http.ErrMissingFile {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid medical note upload"))
		return
	}

	if fileHeader != nil {
		if fileHeader.Size > maxNoteSize {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "medical note exceeds the 5MB limit"))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read medical note"))
			return
		}
		defer file.Close()
		if err := h.attendance.Justify(c.Request.Context(), claims, c.Param("id"), req, file, fileHeader.Filename); err != nil {
			response.Error(c, err)
			return
		}
	} else {
		if err := h.attendance.Justify(c.Request.Context(), claims, c.Param("id"), req, nil, ""); err != nil {
			response.Error(c, err)
			return
		}
	}

	response.NoContent(c)
}

// Summary godoc
// @Summary Per-student absence summary for a class
// @Tags Attendance
// @Produce json
// @Param classId query string true "Class"
// @Param dateFrom query string false "Start date (YYYY-MM-DD)"
// @Param dateTo query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/report [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	classID := c.Query("classId")
	if classID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classId is required"))
		return
	}
	from := time.Now().UTC().AddDate(0, -1, 0)
	to := time.Now().UTC()
	if parsed, err := time.Parse("2006-01-02", c.Query("dateFrom")); err == nil {
		from = parsed
	}
	if parsed, err := time.Parse("2006-01-02", c.Query("dateTo")); err == nil {
		to = parsed
	}

	summaries, err := h.attendance.Summarize(c.Request.Context(), classID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}
