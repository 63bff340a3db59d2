package models

import "time"

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// ModelConfig is one entry of the AI model allow-list. ID is the
// identifier sent to the provider, e.g. "gpt-4o-mini".
type ModelConfig struct {
	ID         string    `gorm:"primaryKey;size:150" json:"id"`
	Name       string    `gorm:"size:150;not null" json:"name"`
	Provider   string    `gorm:"size:30;default:openai" json:"provider"`
	Enabled    bool      `gorm:"default:false;index" json:"enabled"`
	APIKey     string    `gorm:"size:500" json:"-"` // per-model override of the shared key
	APIKeyMask string    `gorm:"-" json:"api_key_mask,omitempty"`
	SortOrder  int       `gorm:"default:0" json:"sort_order"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ModelConfig) TableName() string { return "model_configs" }

func (m *ModelConfig) ProviderName() string {
	if m.Provider == "" {
		return ProviderOpenAI
	}
	return m.Provider
}
