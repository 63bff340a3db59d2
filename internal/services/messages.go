package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/pkg/response"
	"gorm.io/gorm"
)

const chatMessagesTable = "chat_messages"

// MessageService stores direct messages between two users. Messages are
// append-only and only visible to their sender and receiver.
type MessageService struct {
	db   *gorm.DB
	feed *ChangeFeed
	now  func() time.Time
}

func NewMessageService(db *gorm.DB, feed *ChangeFeed) *MessageService {
	return &MessageService{db: db, feed: feed, now: time.Now}
}

type SendMessageRequest struct {
	ReceiverID  uint   `json:"receiver_id" binding:"required"`
	MessageText string `json:"message_text" binding:"required,max=4000"`
}

// Thread summarises one conversation for an inbox.
type Thread struct {
	PeerID      uint      `json:"peer_id"`
	PeerName    string    `json:"peer_name"`
	PeerEmail   string    `json:"peer_email"`
	LastMessage string    `json:"last_message"`
	LastSentAt  time.Time `json:"last_sent_at"`
	Unread      int64     `json:"unread"`
}

func (s *MessageService) Send(ctx context.Context, senderID uint, req *SendMessageRequest) (*models.ChatMessage, error) {
	text := strings.TrimSpace(req.MessageText)
	if text == "" {
		return nil, response.NewBadRequest("message is empty")
	}
	if req.ReceiverID == senderID {
		return nil, response.NewBadRequest("cannot message yourself")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ?", req.ReceiverID, true).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, response.NewNotFound("receiver not found")
	}

	msg := &models.ChatMessage{
		SenderID:    senderID,
		ReceiverID:  req.ReceiverID,
		MessageText: text,
		SentAt:      s.now(),
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	s.feed.PublishRow(chatMessagesTable, ChangeInsert, rowKey(msg.ID), msg)
	return msg, nil
}

// Conversation returns the messages between userID and peerID, oldest first.
func (s *MessageService) Conversation(ctx context.Context, userID, peerID uint, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var msgs []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userID, peerID, peerID, userID).
		Order("sent_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *MessageService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

// Inbox lists userID's conversations, most recent first.
func (s *MessageService) Inbox(ctx context.Context, userID uint) ([]Thread, error) {
	var msgs []models.ChatMessage
	if err := s.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("sent_at DESC, id DESC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}

	byPeer := make(map[uint]*Thread)
	var threads []*Thread
	for _, m := range msgs {
		peer := m.SenderID
		if peer == userID {
			peer = m.ReceiverID
		}
		t, ok := byPeer[peer]
		if !ok {
			t = &Thread{PeerID: peer, LastMessage: m.MessageText, LastSentAt: m.SentAt}
			byPeer[peer] = t
			threads = append(threads, t)
		}
		if m.ReceiverID == userID && !m.IsRead {
			t.Unread++
		}
	}
	if len(threads) == 0 {
		return []Thread{}, nil
	}

	ids := make([]uint, 0, len(byPeer))
	for id := range byPeer {
		ids = append(ids, id)
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Unscoped().Select("id", "email", "full_name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		if t := byPeer[u.ID]; t != nil {
			t.PeerName = u.FullName
			t.PeerEmail = u.Email
		}
	}

	out := make([]Thread, len(threads))
	for i, t := range threads {
		out[i] = *t
	}
	return out, nil
}
