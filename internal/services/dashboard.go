package services

import (
	"context"
	"time"

	"github.com/deedox/platform/internal/models"
	"gorm.io/gorm"
)

type DashboardService struct {
	db       *gorm.DB
	content  *Content
	messages *MessageService
	feed     *ChangeFeed
}

func NewDashboardService(db *gorm.DB, content *Content, messages *MessageService, feed *ChangeFeed) *DashboardService {
	return &DashboardService{db: db, content: content, messages: messages, feed: feed}
}

type AdminStats struct {
	Students          int64 `json:"students"`
	ActiveStudents    int64 `json:"active_students"`
	Courses           int64 `json:"courses"`
	PublishedCourses  int64 `json:"published_courses"`
	Notices           int64 `json:"notices"`
	Testimonials      int64 `json:"testimonials"`
	News              int64 `json:"news"`
	EnabledModels     int64 `json:"enabled_models"`
	MessagesLastWeek  int64 `json:"messages_last_week"`
	SignupsLastWeek   int64 `json:"signups_last_week"`
	RealtimeListeners int   `json:"realtime_listeners"`
}

type StudentDashboard struct {
	Courses        int64           `json:"courses"`
	UnreadMessages int64           `json:"unread_messages"`
	RecentNotices  []models.Notice `json:"recent_notices"`
}

// AdminStats counts rows for the admin overview. Individual count errors
// leave that figure at zero.
func (s *DashboardService) AdminStats(ctx context.Context) (*AdminStats, error) {
	published := map[string]interface{}{"is_published": true}
	weekAgo := time.Now().AddDate(0, 0, -7)

	var stats AdminStats
	var err error
	if stats.Students, err = s.content.Students.Count(ctx, nil); err != nil {
		return nil, err
	}
	stats.ActiveStudents, _ = s.content.Students.Count(ctx, map[string]interface{}{"is_active": true})
	stats.Courses, _ = s.content.Courses.Count(ctx, nil)
	stats.PublishedCourses, _ = s.content.Courses.Count(ctx, published)
	stats.Notices, _ = s.content.Notices.Count(ctx, nil)
	stats.Testimonials, _ = s.content.Testimonials.Count(ctx, nil)
	stats.News, _ = s.content.News.Count(ctx, nil)

	db := s.db.WithContext(ctx)
	db.Model(&models.ModelConfig{}).Where("enabled = ?", true).Count(&stats.EnabledModels)
	db.Model(&models.ChatMessage{}).Where("sent_at >= ?", weekAgo).Count(&stats.MessagesLastWeek)
	db.Model(&models.User{}).Where("role = ? AND created_at >= ?", models.RoleStudent, weekAgo).Count(&stats.SignupsLastWeek)

	stats.RealtimeListeners = s.feed.ClientCount()
	return &stats, nil
}

func (s *DashboardService) Student(ctx context.Context, userID uint) (*StudentDashboard, error) {
	out := &StudentDashboard{}
	var err error
	if out.Courses, err = s.content.Courses.Count(ctx, map[string]interface{}{"is_published": true}); err != nil {
		return nil, err
	}
	if out.UnreadMessages, err = s.messages.UnreadCount(ctx, userID); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).
		Where("is_published = ? AND audience IN ?", true, []string{"all", "students"}).
		Order("created_at DESC, id DESC").
		Limit(5).
		Find(&out.RecentNotices).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
