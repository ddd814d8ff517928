package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/service"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
	"github.com/borrowsmart/lending-api/pkg/response"
)

// LendingHandler exposes borrow and return endpoints.
type LendingHandler struct {
	lending *service.LendingService
	metrics *service.MetricsService
}

// NewLendingHandler constructs LendingHandler.
func NewLendingHandler(lending *service.LendingService, metrics *service.MetricsService) *LendingHandler {
	return &LendingHandler{lending: lending, metrics: metrics}
}

// Borrow godoc
// @Summary Borrow one unit of an instrument
// @Tags Lending
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BorrowRequest true "Borrow payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrowings [post]
func (h *LendingHandler) Borrow(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.lending.Borrow(c.Request.Context(), claims.UserID, req)
	if err != nil {
		h.metrics.RecordLoanOperation("borrow", appErrors.FromError(err).Code)
		response.Error(c, err)
		return
	}
	h.metrics.RecordLoanOperation("borrow", "success")
	response.Created(c, record)
}

// Return godoc
// @Summary Return a borrowed instrument
// @Tags Lending
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Borrowing record ID"
// @Param payload body handler.ReturnPayload true "Return payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrowings/{id}/return [post]
func (h *LendingHandler) Return(c *gin.Context) {
	var payload ReturnPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.lending.Return(c.Request.Context(), service.ReturnRequest{
		RecordID:  c.Param("id"),
		Condition: payload.Condition,
		Notes:     payload.Notes,
	})
	if err != nil {
		h.metrics.RecordLoanOperation("return", appErrors.FromError(err).Code)
		response.Error(c, err)
		return
	}
	h.metrics.RecordLoanOperation("return", "success")
	response.JSON(c, http.StatusOK, record, nil)
}

// ReturnPayload carries the reported condition of a returned instrument.
type ReturnPayload struct {
	Condition models.ReturnCondition `json:"condition" binding:"required"`
	Notes     string                 `json:"notes"`
}

// Get godoc
// @Summary Get a borrowing record
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Param id path string true "Borrowing record ID"
// @Success 200 {object} response.Envelope
// @Router /borrowings/{id} [get]
func (h *LendingHandler) Get(c *gin.Context) {
	record, status, err := h.lending.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil, map[string]interface{}{"current_status": status})
}

// Active godoc
// @Summary List all open loans
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /borrowings/active [get]
func (h *LendingHandler) Active(c *gin.Context) {
	loans, err := h.lending.ActiveLoans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, nil)
}

// History godoc
// @Summary Own borrowing history with summary counters
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /borrowings/history [get]
func (h *LendingHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	loans, stats, err := h.lending.History(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, nil, map[string]interface{}{"stats": stats})
}
