package handlers

import (
	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GET /api/dashboard
func (h *DashboardHandler) Student(c *gin.Context) {
	resp, err := h.dashboardService.Student(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, resp)
}

// GET /api/admin/dashboard
func (h *DashboardHandler) Admin(c *gin.Context) {
	resp, err := h.dashboardService.AdminStats(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, resp)
}
