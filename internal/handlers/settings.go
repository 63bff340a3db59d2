package handlers

import (
	"errors"

	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/internal/utils"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
)

// SettingsHandler serves the admin settings screens. Each request works on
// a fresh aggregator snapshot; the public endpoint uses a long-lived one
// kept current by the change feed.
type SettingsHandler struct {
	store  *services.SettingsStore
	public *services.SettingsAggregator
}

func NewSettingsHandler(store *services.SettingsStore, public *services.SettingsAggregator) *SettingsHandler {
	return &SettingsHandler{store: store, public: public}
}

type settingEntry struct {
	Value    map[string]interface{} `json:"value"`
	Revision int64                  `json:"revision"`
}

type putSettingRequest struct {
	Value    map[string]interface{} `json:"value" binding:"required"`
	Revision *int64                 `json:"revision"`
}

func settingKey(c *gin.Context) (string, bool) {
	key := c.Param("key")
	if !utils.IsSettingKey(key) {
		response.BadRequest(c, "invalid setting key")
		return "", false
	}
	return key, true
}

func (h *SettingsHandler) session(c *gin.Context) (*services.SettingsAggregator, bool) {
	agg := services.NewSettingsAggregator(h.store).ForUser(middleware.GetUserID(c))
	if err := agg.Load(c.Request.Context()); err != nil {
		response.ServerError(c, "failed to load settings")
		return nil, false
	}
	return agg, true
}

// GET /api/admin/settings
func (h *SettingsHandler) GetAll(c *gin.Context) {
	agg, ok := h.session(c)
	if !ok {
		return
	}
	out := make(map[string]settingEntry)
	for key, value := range agg.All() {
		out[key] = settingEntry{Value: value, Revision: agg.Revision(key)}
	}
	response.Success(c, out)
}

// GET /api/admin/settings/:key
func (h *SettingsHandler) Get(c *gin.Context) {
	key, ok := settingKey(c)
	if !ok {
		return
	}
	s, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, s)
}

// PUT /api/admin/settings/:key
// The value is shallow-merged into the stored one. With a revision the write
// is rejected (409) if someone saved in between.
func (h *SettingsHandler) Put(c *gin.Context) {
	key, ok := settingKey(c)
	if !ok {
		return
	}
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	s, err := h.store.Merge(c.Request.Context(), key, req.Value, req.Revision, middleware.GetUserIDPtr(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	services.LogInfo("settings", "update", "setting "+key+" updated", middleware.GetUserIDPtr(c), c.ClientIP(), c.Request.UserAgent(), nil)
	response.Success(c, s)
}

// GET /api/admin/settings/:key/items
func (h *SettingsHandler) ListItems(c *gin.Context) {
	key, ok := settingKey(c)
	if !ok {
		return
	}
	agg, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, agg.List(key).Items())
}

// POST /api/admin/settings/:key/items
func (h *SettingsHandler) AddItem(c *gin.Context) {
	key, ok := settingKey(c)
	if !ok {
		return
	}
	var item map[string]interface{}
	if err := c.ShouldBindJSON(&item); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	agg, ok := h.session(c)
	if !ok {
		return
	}
	added, err := agg.List(key).Add(c.Request.Context(), item)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, added)
}

// PUT /api/admin/settings/:key/items/:item
func (h *SettingsHandler) UpdateItem(c *gin.Context) {
	key, ok := settingKey(c)
	if !ok {
		return
	}
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	agg, ok := h.session(c)
	if !ok {
		return
	}
	item, err := agg.List(key).Update(c.Request.Context(), c.Param("item"), patch)
	if err != nil {
		if errors.Is(err, services.ErrListItemNotFound) {
			response.NotFound(c, "item not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, item)
}

// DELETE /api/admin/settings/:key/items/:item
func (h *SettingsHandler) RemoveItem(c *gin.Context) {
	key, ok := settingKey(c)
	if !ok {
		return
	}
	agg, ok := h.session(c)
	if !ok {
		return
	}
	removed, err := agg.List(key).Remove(c.Request.Context(), c.Param("item"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("item"), "deleted": removed})
}

// GET /api/public/settings
func (h *SettingsHandler) Public(c *gin.Context) {
	response.Success(c, h.public.All())
}

// GET /api/public/settings/:key
func (h *SettingsHandler) PublicKey(c *gin.Context) {
	key, ok := settingKey(c)
	if !ok {
		return
	}
	response.Success(c, h.public.Get(key))
}
