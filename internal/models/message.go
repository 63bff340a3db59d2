package models

import "time"

// ChatMessage is append-only: created on send, never edited or deleted.
type ChatMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SenderID    uint      `gorm:"index;not null" json:"sender_id"`
	ReceiverID  uint      `gorm:"index;not null" json:"receiver_id"`
	MessageText string    `gorm:"type:text;not null" json:"message_text"`
	SentAt      time.Time `gorm:"index;not null" json:"sent_at"`
	IsRead      bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
