package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dabestan-dev/dabestan-api/internal/service"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
	"github.com/dabestan-dev/dabestan-api/pkg/response"
)

const maxImportSize = 10 << 20

// ImportHandler drives the spreadsheet import wizard.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler constructs ImportHandler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Fields godoc
// @Summary List mappable fields for an import target
// @Tags Imports
// @Produce json
// @Param target path string true "Import target"
// @Success 200 {object} response.Envelope
// @Router /imports/fields/{target} [get]
func (h *ImportHandler) Fields(c *gin.Context) {
	fields, err := h.imports.Fields(c.Param("target"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fields, nil)
}

// Template godoc
// @Summary Download an import template workbook
// @Tags Imports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param target path string true "Import target"
// @Success 200 {file} binary
// @Router /imports/template/{target} [get]
func (h *ImportHandler) Template(c *gin.Context) {
	target := c.Param("target")
	payload, err := h.imports.Template(target)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_template.xlsx", target))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", payload)
}

// Upload godoc
// @Summary Start an import session from a spreadsheet
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param target formData string true "Import target"
// @Param file formData file true "Workbook (.xlsx)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	target := c.PostForm("target")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a workbook file is required"))
		return
	}
	if fileHeader.Size > maxImportSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "workbook exceeds the 10MB limit"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read workbook"))
		return
	}
	defer file.Close()

	session, err := h.imports.Upload(target, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get import session state
// @Tags Imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /imports/sessions/{id} [get]
func (h *ImportHandler) Get(c *gin.Context) {
	session, err := h.imports.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// SetMapping godoc
// @Summary Set the column-to-field mapping
// @Description Advances the wizard only when every required field is mapped
// @Tags Imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /imports/sessions/{id}/mapping [put]
func (h *ImportHandler) SetMapping(c *gin.Context) {
	var payload struct {
		Mapping map[string]string `json:"mapping" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "mapping required"))
		return
	}
	session, err := h.imports.SetMapping(c.Param("id"), payload.Mapping)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Preview godoc
// @Summary Preview the first mapped rows
// @Tags Imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /imports/sessions/{id}/preview [get]
func (h *ImportHandler) Preview(c *gin.Context) {
	rows, total, err := h.imports.Preview(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"rows": rows, "total_rows": total}, nil)
}

// Commit godoc
// @Summary Commit the import
// @Description Runs the target's importer over the mapped rows. The users
// target requires an options.userType value.
// @Tags Imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /imports/sessions/{id}/commit [post]
func (h *ImportHandler) Commit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Options map[string]string `json:"options"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid commit payload"))
			return
		}
	}

	result, err := h.imports.Commit(c.Request.Context(), claims.UserID, c.Param("id"), payload.Options)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Back godoc
// @Summary Step the wizard back
// @Tags Imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /imports/sessions/{id}/back [post]
func (h *ImportHandler) Back(c *gin.Context) {
	session, err := h.imports.Back(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Discard godoc
// @Summary Discard an import session
// @Tags Imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Router /imports/sessions/{id} [delete]
func (h *ImportHandler) Discard(c *gin.Context) {
	h.imports.Discard(c.Param("id"))
	response.NoContent(c)
}
