package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventsHandler streams change-feed events to browsers as Server-Sent Events.
type EventsHandler struct {
	feed      *services.ChangeFeed
	heartbeat time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func NewEventsHandler(feed *services.ChangeFeed, heartbeatSeconds int) *EventsHandler {
	if heartbeatSeconds <= 0 {
		heartbeatSeconds = 25
	}
	return &EventsHandler{
		feed:      feed,
		heartbeat: time.Duration(heartbeatSeconds) * time.Second,
		done:      make(chan struct{}),
	}
}

// Close ends every open stream. http.Server.Shutdown does not cancel
// long-lived requests on its own.
func (h *EventsHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// GET /api/events?tables=courses,notices
// Authenticated by StreamAuth, which also accepts ?token= because
// EventSource cannot set headers. Non-admins only receive public tables
// and their own chat messages, whatever ?tables= asks for.
func (h *EventsHandler) Stream(c *gin.Context) {
	var tables []string
	if t := c.Query("tables"); t != "" {
		tables = strings.Split(t, ",")
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	allow := services.FeedAudience(middleware.GetRole(c), middleware.GetUserID(c))
	events := h.feed.SubscribeFiltered(clientID, allow, tables...)
	defer h.feed.Unsubscribe(clientID)

	logger.Info().
		Str("client_id", clientID).
		Uint("user_id", middleware.GetUserID(c)).
		Str("role", middleware.GetRole(c)).
		Strs("tables", tables).
		Int("total", h.feed.ClientCount()).
		Msg("SSE client connected")

	// send headers now so the client sees the stream open before any event
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			c.Writer.Flush()
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			c.Writer.Flush()
			return true
		case <-h.done:
			return false
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
