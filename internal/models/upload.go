package models

import "time"

type Upload struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Bucket      string    `gorm:"size:100;not null" json:"bucket"`
	ObjectKey   string    `gorm:"size:500;not null;index" json:"object_key"`
	URL         string    `gorm:"size:600" json:"url"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	Size        int64     `json:"size"`
	UploadedBy  *uint     `json:"uploaded_by"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (Upload) TableName() string { return "uploads" }
