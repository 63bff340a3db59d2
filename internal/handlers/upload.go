package handlers

import (
	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type UploadHandler struct {
	storage *services.StorageService
}

func NewUploadHandler(storage *services.StorageService) *UploadHandler {
	return &UploadHandler{storage: storage}
}

// POST /api/admin/uploads (multipart, field "file")
func (h *UploadHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "cannot read file")
		return
	}
	defer f.Close()

	up, err := h.storage.Save(c.Request.Context(), f, middleware.GetUserIDPtr(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, up)
}

// GET /api/admin/uploads
func (h *UploadHandler) List(c *gin.Context) {
	page, pageSize := cast.ToInt(c.Query("page")), cast.ToInt(c.Query("page_size"))
	items, total, err := h.storage.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	response.Paged(c, total, page, pageSize, items)
}
