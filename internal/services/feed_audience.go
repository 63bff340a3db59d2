package services

import (
	"encoding/json"

	"github.com/deedox/platform/internal/models"
)

// publicFeedTables carry rows any signed-in user can already read through
// the public endpoints.
var publicFeedTables = map[string]bool{
	"courses":         true,
	"notices":         true,
	"testimonials":    true,
	"news_items":      true,
	settingsTable:     true,
	modelConfigsTable: true,
}

// FeedAudience returns the event filter for a stream opened by a user.
// Admins see every table. Everyone else sees the public tables plus the
// chat messages they sent or received; users and uploads stay admin-only.
func FeedAudience(role string, userID uint) EventFilter {
	if role == models.RoleAdmin {
		return nil
	}
	return func(ev ChangeEvent) bool {
		if publicFeedTables[ev.Table] {
			return true
		}
		if ev.Table == chatMessagesTable {
			return isParticipant(ev.Record, userID)
		}
		return false
	}
}

func isParticipant(record json.RawMessage, userID uint) bool {
	if len(record) == 0 || userID == 0 {
		return false
	}
	var msg struct {
		SenderID   uint `json:"sender_id"`
		ReceiverID uint `json:"receiver_id"`
	}
	if err := json.Unmarshal(record, &msg); err != nil {
		return false
	}
	return msg.SenderID == userID || msg.ReceiverID == userID
}
