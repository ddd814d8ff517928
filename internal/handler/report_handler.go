package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/service"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
	"github.com/borrowsmart/lending-api/pkg/response"
)

// ReportHandler exposes reporting endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Period godoc
// @Summary Lending report for a period
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param start_date query string false "Period start (YYYY-MM-DD)"
// @Param end_date query string false "Period end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) Period(c *gin.Context) {
	period, err := parsePeriod(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.reports.PeriodReport(c.Request.Context(), period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Download the lending report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param start_date query string false "Period start (YYYY-MM-DD)"
// @Param end_date query string false "Period end (YYYY-MM-DD)"
// @Param format query string true "Export format (csv or pdf)"
// @Success 200 {file} byte
// @Router /reports/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	period, err := parsePeriod(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.reports.Export(c.Request.Context(), period, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func parsePeriod(c *gin.Context) (models.ReportPeriod, error) {
	var period models.ReportPeriod
	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return period, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
		}
		period.StartDate = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return period, appErrors.Clone(appErrors.ErrValidation, "end_date must be YYYY-MM-DD")
		}
		period.EndDate = parsed
	}
	return period, nil
}
