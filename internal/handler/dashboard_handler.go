package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/service"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
	"github.com/borrowsmart/lending-api/pkg/response"
)

// DashboardHandler exposes role-scoped dashboard endpoints.
type DashboardHandler struct {
	dashboards *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboards *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards}
}

// Admin godoc
// @Summary Admin dashboard
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	dashboard, cached, err := h.dashboards.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil, map[string]interface{}{"cached": cached})
}

// Staff godoc
// @Summary Staff dashboard
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/staff [get]
func (h *DashboardHandler) Staff(c *gin.Context) {
	dashboard, cached, err := h.dashboards.Staff(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil, map[string]interface{}{"cached": cached})
}

// Student godoc
// @Summary Personal dashboard
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/me [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	dashboard, err := h.dashboards.Student(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// ForRole dispatches to the dashboard matching the caller's role.
func (h *DashboardHandler) ForRole(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	switch claims.Role {
	case models.RoleAdmin:
		h.Admin(c)
	case models.RoleStaff:
		h.Staff(c)
	default:
		h.Student(c)
	}
}
