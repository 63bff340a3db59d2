package handlers

import (
	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
)

type ModelConfigHandler struct {
	modelService      *services.ModelConfigService
	credentialService *services.CredentialService
}

func NewModelConfigHandler(modelService *services.ModelConfigService, credentialService *services.CredentialService) *ModelConfigHandler {
	return &ModelConfigHandler{modelService: modelService, credentialService: credentialService}
}

// GET /api/admin/models
func (h *ModelConfigHandler) List(c *gin.Context) {
	var req services.ModelConfigListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	items, total, err := h.modelService.List(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}
	response.Paged(c, total, req.Page, req.PageSize, items)
}

// GET /api/models
func (h *ModelConfigHandler) ListEnabled(c *gin.Context) {
	items, err := h.modelService.ListEnabled(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, items)
}

// POST /api/admin/models
func (h *ModelConfigHandler) Create(c *gin.Context) {
	var req services.CreateModelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.modelService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// PUT /api/admin/models/:id
func (h *ModelConfigHandler) Update(c *gin.Context) {
	var req services.UpdateModelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.modelService.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		if services.IsNotFound(err) {
			response.NotFound(c, "model not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, m)
}

// POST /api/admin/models/:id/toggle
func (h *ModelConfigHandler) Toggle(c *gin.Context) {
	enabled, err := h.modelService.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		if services.IsNotFound(err) {
			response.NotFound(c, "model not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("id"), "enabled": enabled})
}

// DELETE /api/admin/models/:id
func (h *ModelConfigHandler) Delete(c *gin.Context) {
	deleted, err := h.modelService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("id"), "deleted": deleted})
}

// GET /api/admin/credential
func (h *ModelConfigHandler) GetCredential(c *gin.Context) {
	p, err := h.credentialService.Preview(c.Request.Context())
	if err != nil {
		response.ServerError(c, "failed to read credential")
		return
	}
	response.Success(c, p)
}

type setCredentialRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// PUT /api/admin/credential
func (h *ModelConfigHandler) SetCredential(c *gin.Context) {
	var req setCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.credentialService.Set(c.Request.Context(), req.APIKey, middleware.GetUserIDPtr(c)); err != nil {
		response.Error(c, err)
		return
	}
	services.LogInfo("credential", "update", "AI provider credential replaced", middleware.GetUserIDPtr(c), c.ClientIP(), c.Request.UserAgent(), nil)
	h.GetCredential(c)
}

// DELETE /api/admin/credential
func (h *ModelConfigHandler) ClearCredential(c *gin.Context) {
	cleared, err := h.credentialService.Clear(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	services.LogInfo("credential", "delete", "AI provider credential cleared", middleware.GetUserIDPtr(c), c.ClientIP(), c.Request.UserAgent(), nil)
	response.Success(c, gin.H{"deleted": cleared})
}
