package handlers

import (
	"net/http"

	"github.com/deedox/platform/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the subsystems the API depends on.
type HealthHandler struct {
	db    *gorm.DB
	feed  *services.ChangeFeed
	queue services.MailQueue
}

func NewHealthHandler(db *gorm.DB, feed *services.ChangeFeed, queue services.MailQueue) *HealthHandler {
	return &HealthHandler{db: db, feed: feed, queue: queue}
}

// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "deedox",
		"components": gin.H{
			"database":    dbStatus,
			"mail_queue":  queueMode,
			"sse_clients": h.feed.ClientCount(),
		},
	})
}
