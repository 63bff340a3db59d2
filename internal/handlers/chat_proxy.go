package handlers

import (
	"net/http"

	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
)

// ChatProxyHandler fronts the AI provider. Unlike the rest of the API it
// answers errors as a bare {"error": "..."} and passes upstream bodies
// through untouched.
type ChatProxyHandler struct {
	proxy *services.ChatProxy
}

func NewChatProxyHandler(proxy *services.ChatProxy) *ChatProxyHandler {
	return &ChatProxyHandler{proxy: proxy}
}

// POST /chat-proxy and POST /api/ai-chat
func (h *ChatProxyHandler) Chat(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AbortProxy(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	completion, err := h.proxy.Complete(c.Request.Context(), middleware.GetIdentity(c), &req)
	if err != nil {
		status, msg := services.ProxyStatus(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		response.AbortProxy(c, status, msg)
		return
	}
	c.Data(http.StatusOK, "application/json", completion.Body)
}
