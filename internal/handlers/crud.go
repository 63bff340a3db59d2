package handlers

import (
	"strconv"
	"strings"

	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// CRUDHandler serves one admin list screen: list, create, edit, toggle and
// delete over a services.Resource.
type CRUDHandler[T services.Row] struct {
	res      *services.Resource[T]
	name     string
	editable map[string]bool
	required []string
	// onCreate runs before insert, e.g. to stamp created_by
	onCreate func(c *gin.Context, row *T)
}

// NewCRUDHandler accepts updates to the editable columns only. Required
// columns may not be blanked by an update.
func NewCRUDHandler[T services.Row](res *services.Resource[T], name string, editable, required []string) *CRUDHandler[T] {
	h := &CRUDHandler[T]{res: res, name: name, editable: make(map[string]bool), required: required}
	for _, col := range editable {
		h.editable[col] = true
	}
	return h
}

func (h *CRUDHandler[T]) OnCreate(fn func(c *gin.Context, row *T)) *CRUDHandler[T] {
	h.onCreate = fn
	return h
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// List: ?page=&page_size=&keyword=&<toggle column>=true|false
func (h *CRUDHandler[T]) List(c *gin.Context) {
	lq := services.ListQuery{
		Page:     cast.ToInt(c.Query("page")),
		PageSize: cast.ToInt(c.Query("page_size")),
		Keyword:  c.Query("keyword"),
	}
	if col := h.res.ToggleColumn(); col != "" {
		if v := c.Query(col); v != "" {
			lq.Filters = map[string]interface{}{col: cast.ToBool(v)}
		}
	}

	items, total, err := h.res.List(c.Request.Context(), lq)
	if err != nil {
		response.Error(c, err)
		return
	}
	if lq.Page < 1 {
		lq.Page = 1
	}
	if lq.PageSize < 1 || lq.PageSize > 100 {
		lq.PageSize = 20
	}
	response.Paged(c, total, lq.Page, lq.PageSize, items)
}

func (h *CRUDHandler[T]) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	row, err := h.res.Get(c.Request.Context(), id)
	if err != nil {
		if services.IsNotFound(err) {
			response.NotFound(c, h.name+" not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, row)
}

func (h *CRUDHandler[T]) Create(c *gin.Context) {
	row := new(T)
	if err := c.ShouldBindJSON(row); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if (*row).RowID() != 0 {
		response.BadRequest(c, "id is assigned by the server")
		return
	}
	if h.onCreate != nil {
		h.onCreate(c, row)
	}
	if err := h.res.Create(c.Request.Context(), row); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

func (h *CRUDHandler[T]) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	fields := make(map[string]interface{})
	for k, v := range body {
		if h.editable[k] {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		response.BadRequest(c, "no editable fields in request")
		return
	}
	for _, col := range h.required {
		if v, present := fields[col]; present && strings.TrimSpace(cast.ToString(v)) == "" {
			response.BadRequest(c, col+" is required")
			return
		}
	}

	row, err := h.res.Update(c.Request.Context(), id, fields)
	if err != nil {
		if services.IsNotFound(err) {
			response.NotFound(c, h.name+" not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, row)
}

type toggleRequest struct {
	Current *bool `json:"current"`
}

// Toggle flips the resource's flag. The body may carry the value the client
// displayed as {"current": bool}; without it the stored value is used.
func (h *CRUDHandler[T]) Toggle(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req toggleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	next, err := h.res.Toggle(c.Request.Context(), id, req.Current)
	if err != nil {
		if services.IsNotFound(err) {
			response.NotFound(c, h.name+" not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, h.res.ToggleColumn(): next})
}

// Delete answers 200 {"deleted": false} for ids that do not exist.
func (h *CRUDHandler[T]) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := h.res.Remove(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "deleted": deleted})
}

// Register mounts the full set of routes on g.
func (h *CRUDHandler[T]) Register(g *gin.RouterGroup) {
	h.RegisterReadOnly(g)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
}

// RegisterReadOnly mounts list, get, toggle and delete only. Student accounts
// are created through signup, never from the admin screen.
func (h *CRUDHandler[T]) RegisterReadOnly(g *gin.RouterGroup) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/toggle", h.Toggle)
	g.DELETE("/:id", h.Delete)
}
