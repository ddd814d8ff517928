package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/service"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
	"github.com/borrowsmart/lending-api/pkg/response"
)

// InstrumentHandler exposes catalog endpoints.
type InstrumentHandler struct {
	catalog *service.CatalogService
}

// NewInstrumentHandler constructs InstrumentHandler.
func NewInstrumentHandler(catalog *service.CatalogService) *InstrumentHandler {
	return &InstrumentHandler{catalog: catalog}
}

// List godoc
// @Summary List instruments
// @Tags Instruments
// @Produce json
// @Param category query string false "Filter by category"
// @Param status query string false "Filter by status"
// @Param search query string false "Search by name"
// @Param borrowable query bool false "Only instruments with available units"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /instruments [get]
func (h *InstrumentHandler) List(c *gin.Context) {
	var filter models.InstrumentFilter
	filter.Category = models.InstrumentCategory(c.Query("category"))
	filter.Status = models.InstrumentStatus(c.Query("status"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.OnlyBorrowable = c.Query("borrowable") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	instruments, total, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instruments, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get instrument detail
// @Tags Instruments
// @Produce json
// @Param id path string true "Instrument ID"
// @Success 200 {object} response.Envelope
// @Router /instruments/{id} [get]
func (h *InstrumentHandler) Get(c *gin.Context) {
	instrument, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instrument, nil)
}

// Create godoc
// @Summary Register an instrument
// @Tags Instruments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateInstrumentRequest true "Instrument payload"
// @Success 201 {object} response.Envelope
// @Router /instruments [post]
func (h *InstrumentHandler) Create(c *gin.Context) {
	var req service.CreateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	instrument, err := h.catalog.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, instrument)
}

// Update godoc
// @Summary Update an instrument
// @Tags Instruments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instrument ID"
// @Param payload body service.UpdateInstrumentRequest true "Instrument payload"
// @Success 200 {object} response.Envelope
// @Router /instruments/{id} [put]
func (h *InstrumentHandler) Update(c *gin.Context) {
	var req service.UpdateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	instrument, err := h.catalog.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instrument, nil)
}

// SetStatus godoc
// @Summary Set instrument administrative status
// @Tags Instruments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instrument ID"
// @Param payload body handler.SetStatusRequest true "Status payload"
// @Success 204
// @Router /instruments/{id}/status [put]
func (h *InstrumentHandler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.catalog.SetStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetStatusRequest carries the administrative status flag.
type SetStatusRequest struct {
	Status models.InstrumentStatus `json:"status" binding:"required"`
}

// Delete godoc
// @Summary Delete an instrument
// @Tags Instruments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instrument ID"
// @Success 204
// @Router /instruments/{id} [delete]
func (h *InstrumentHandler) Delete(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
