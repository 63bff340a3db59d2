package handlers

import (
	"strconv"

	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messages *services.MessageService
}

func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Conversation returns the messages exchanged with ?with=<user id>, or the
// inbox when with is absent.
// GET /api/messages
func (h *MessageHandler) Conversation(c *gin.Context) {
	with := c.Query("with")
	if with == "" {
		h.Inbox(c)
		return
	}
	peerID, err := strconv.ParseUint(with, 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.messages.Conversation(c.Request.Context(), middleware.GetUserID(c), uint(peerID), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}

// POST /api/messages
func (h *MessageHandler) Send(c *gin.Context) {
	var req services.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.messages.Send(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// GET /api/messages/unread
func (h *MessageHandler) Unread(c *gin.Context) {
	n, err := h.messages.UnreadCount(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"unread": n})
}

// GET /api/admin/messages
func (h *MessageHandler) Inbox(c *gin.Context) {
	threads, err := h.messages.Inbox(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, threads)
}
