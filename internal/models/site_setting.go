package models

import (
	"time"

	"gorm.io/datatypes"
)

// SiteSetting is one named JSON document for a section of the public site.
// Revision starts at 1 and grows by one on every write.
type SiteSetting struct {
	Key       string         `gorm:"primaryKey;size:64" json:"key"`
	Value     datatypes.JSON `gorm:"not null" json:"value"`
	Revision  int64          `gorm:"not null;default:1" json:"revision"`
	UpdatedBy *uint          `json:"updated_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (SiteSetting) TableName() string { return "site_settings" }
