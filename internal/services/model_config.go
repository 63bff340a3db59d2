package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/utils"
	"github.com/deedox/platform/pkg/response"
	"gorm.io/gorm"
)

const modelConfigsTable = "model_configs"

// ModelConfigService manages the AI model allow-list.
type ModelConfigService struct {
	db   *gorm.DB
	feed *ChangeFeed
}

func NewModelConfigService(db *gorm.DB, feed *ChangeFeed) *ModelConfigService {
	return &ModelConfigService{db: db, feed: feed}
}

type ModelConfigListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size" binding:"omitempty,max=100"`
	Name     string `form:"name"`
	Provider string `form:"provider"`
	Enabled  *bool  `form:"enabled"`
}

type CreateModelConfigRequest struct {
	ID        string `json:"id" binding:"required,max=150"`
	Name      string `json:"name" binding:"required,max=150"`
	Provider  string `json:"provider" binding:"provider"`
	Enabled   bool   `json:"enabled"`
	APIKey    string `json:"api_key"`
	SortOrder int    `json:"sort_order"`
}

type UpdateModelConfigRequest struct {
	Name      string  `json:"name" binding:"max=150"`
	Provider  string  `json:"provider" binding:"provider"`
	Enabled   *bool   `json:"enabled"`
	APIKey    *string `json:"api_key"` // "" clears the override
	SortOrder *int    `json:"sort_order"`
}

// ModelOption is what the chat picker sees.
type ModelOption struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

func mask(m *models.ModelConfig) *models.ModelConfig {
	m.APIKeyMask = utils.MaskSecret(m.APIKey)
	return m
}

func (s *ModelConfigService) List(ctx context.Context, req *ModelConfigListRequest) ([]models.ModelConfig, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.ModelConfig{})
	if req.Name != "" {
		query = query.Where("name LIKE ? OR id LIKE ?", "%"+req.Name+"%", "%"+req.Name+"%")
	}
	if req.Provider != "" {
		query = query.Where("provider = ?", req.Provider)
	}
	if req.Enabled != nil {
		query = query.Where("enabled = ?", *req.Enabled)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.ModelConfig
	if err := query.Order("sort_order ASC, created_at DESC").
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	for i := range items {
		mask(&items[i])
	}
	return items, total, nil
}

// Get returns gorm.ErrRecordNotFound (wrapped) for unknown ids.
func (s *ModelConfigService) Get(ctx context.Context, id string) (*models.ModelConfig, error) {
	var m models.ModelConfig
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, fmt.Errorf("model %s: %w", id, err)
	}
	return mask(&m), nil
}

// ListEnabled returns the models the proxy will serve.
func (s *ModelConfigService) ListEnabled(ctx context.Context) ([]ModelOption, error) {
	var rows []models.ModelConfig
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("sort_order ASC, name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ModelOption, len(rows))
	for i := range rows {
		out[i] = ModelOption{ID: rows[i].ID, Name: rows[i].Name, Provider: rows[i].ProviderName()}
	}
	return out, nil
}

func (s *ModelConfigService) Create(ctx context.Context, req *CreateModelConfigRequest) (*models.ModelConfig, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, response.NewBadRequest("model id is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ModelConfig{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check model %s: %w", id, err)
	}
	if count > 0 {
		return nil, response.NewConflict("model " + id + " already exists")
	}

	provider := req.Provider
	if provider == "" {
		provider = models.ProviderOpenAI
	}
	m := models.ModelConfig{
		ID:        id,
		Name:      req.Name,
		Provider:  provider,
		Enabled:   req.Enabled,
		APIKey:    req.APIKey,
		SortOrder: req.SortOrder,
	}
	// gorm skips zero-value bools that carry a default tag
	if err := s.db.WithContext(ctx).Select("*").Create(&m).Error; err != nil {
		return nil, err
	}
	s.feed.PublishRow(modelConfigsTable, ChangeInsert, m.ID, mask(&m))
	return &m, nil
}

func (s *ModelConfigService) Update(ctx context.Context, id string, req *UpdateModelConfigRequest) (*models.ModelConfig, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Provider != "" {
		updates["provider"] = req.Provider
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.APIKey != nil {
		updates["api_key"] = *req.APIKey
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.ModelConfig{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.feed.PublishRow(modelConfigsTable, ChangeUpdate, id, m)
	return m, nil
}

// Toggle flips enabled and returns the new value.
func (s *ModelConfigService) Toggle(ctx context.Context, id string) (bool, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	next := !m.Enabled
	if err := s.db.WithContext(ctx).Model(&models.ModelConfig{}).Where("id = ?", id).Update("enabled", next).Error; err != nil {
		return false, err
	}
	m.Enabled = next
	s.feed.PublishRow(modelConfigsTable, ChangeUpdate, id, m)
	return next, nil
}

// Delete reports whether a row was removed; unknown ids are not an error.
func (s *ModelConfigService) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ModelConfig{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.feed.PublishRow(modelConfigsTable, ChangeDelete, id, nil)
	return true, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
