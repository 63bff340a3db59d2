package models

import "time"

// CredentialAIProvider names the shared key used by the chat proxy.
const CredentialAIProvider = "ai_provider_key"

// SystemCredential holds a sealed secret. Ciphertext is never serialized.
type SystemCredential struct {
	Name       string    `gorm:"primaryKey;size:100" json:"name"`
	Ciphertext string    `gorm:"type:text;not null" json:"-"`
	UpdatedBy  *uint     `json:"updated_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (SystemCredential) TableName() string { return "system_credentials" }
