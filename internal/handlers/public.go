package handlers

import (
	"context"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
)

var published = map[string]interface{}{"is_published": true}

// PublicHandler serves the landing-page lists from in-memory copies that
// the change feed keeps current.
type PublicHandler struct {
	courses      *services.LiveList[models.Course]
	notices      *services.LiveList[models.Notice]
	testimonials *services.LiveList[models.Testimonial]
	news         *services.LiveList[models.NewsItem]
}

func NewPublicHandler(content *services.Content) *PublicHandler {
	return &PublicHandler{
		courses: services.NewLiveList(content.Courses, published,
			func(c *models.Course) bool { return c.IsPublished }),
		notices: services.NewLiveList(content.Notices,
			map[string]interface{}{"is_published": true, "audience": "all"},
			func(n *models.Notice) bool { return n.IsPublished && n.Audience == "all" }),
		testimonials: services.NewLiveList(content.Testimonials, published,
			func(t *models.Testimonial) bool { return t.IsPublished }),
		news: services.NewLiveList(content.News, published,
			func(n *models.NewsItem) bool { return n.IsPublished }),
	}
}

// Reload refetches every list. Writes made by other processes (deedoxctl)
// never reach the in-process feed and only show up after a reload.
func (h *PublicHandler) Reload(ctx context.Context) error {
	loaders := []func(context.Context) error{h.courses.Load, h.notices.Load, h.testimonials.Load, h.news.Load}
	for _, load := range loaders {
		if err := load(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Start loads every list and subscribes it to feed. The returned func
// unsubscribes them all.
func (h *PublicHandler) Start(ctx context.Context, feed *services.ChangeFeed) (stop func(), err error) {
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	stops := []func(){
		h.courses.Watch(feed, "public-courses"),
		h.notices.Watch(feed, "public-notices"),
		h.testimonials.Watch(feed, "public-testimonials"),
		h.news.Watch(feed, "public-news"),
	}
	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}

// GET /api/public/courses
func (h *PublicHandler) Courses(c *gin.Context) {
	response.Success(c, h.courses.Items())
}

// GET /api/public/notices
func (h *PublicHandler) Notices(c *gin.Context) {
	response.Success(c, h.notices.Items())
}

// GET /api/public/testimonials
func (h *PublicHandler) Testimonials(c *gin.Context) {
	response.Success(c, h.testimonials.Items())
}

// GET /api/public/news
func (h *PublicHandler) News(c *gin.Context) {
	response.Success(c, h.news.Items())
}
