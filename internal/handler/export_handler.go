package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dualsign/attendance-api/internal/models"
	"github.com/dualsign/attendance-api/internal/service"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
	"github.com/dualsign/attendance-api/pkg/response"
)

// ExportHandler streams attendance and roster exports.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// RecordsCSV godoc
// @Summary Export a session's attendance records as CSV
// @Tags Exports
// @Produce text/csv
// @Param sessionID path string true "Session ID"
// @Success 200 {string} string "CSV payload"
// @Failure 403 {object} response.Envelope
// @Router /exports/records/{sessionID}/csv [get]
func (h *ExportHandler) RecordsCSV(c *gin.Context) {
	data, filename, err := h.service.RecordsCSV(c.Request.Context(), c.Param("sessionID"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	writeAttachment(c, data, filename, "text/csv")
}

// RecordsPDF godoc
// @Summary Export a session's attendance records as PDF
// @Tags Exports
// @Produce application/pdf
// @Param sessionID path string true "Session ID"
// @Success 200 {string} string "PDF payload"
// @Failure 403 {object} response.Envelope
// @Router /exports/records/{sessionID}/pdf [get]
func (h *ExportHandler) RecordsPDF(c *gin.Context) {
	data, filename, err := h.service.RecordsPDF(c.Request.Context(), c.Param("sessionID"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	writeAttachment(c, data, filename, "application/pdf")
}

// UsersCSV godoc
// @Summary Export the user roster as CSV
// @Tags Exports
// @Produce text/csv
// @Param role query string false "Role filter"
// @Success 200 {string} string "CSV payload"
// @Router /exports/users/csv [get]
func (h *ExportHandler) UsersCSV(c *gin.Context) {
	var role *models.UserRole
	if raw := c.Query("role"); raw != "" {
		parsed := models.UserRole(raw)
		if !parsed.Valid() {
			response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "unknown role"))
			return
		}
		role = &parsed
	}

	data, filename, err := h.service.UsersCSV(c.Request.Context(), role)
	if err != nil {
		response.Error(c, err)
		return
	}

	writeAttachment(c, data, filename, "text/csv")
}

func writeAttachment(c *gin.Context, data []byte, filename, contentType string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
