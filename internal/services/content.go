package services

import (
	"github.com/deedox/platform/internal/models"
	"gorm.io/gorm"
)

// Content groups the list-screen resources of the admin panel.
type Content struct {
	Courses      *Resource[models.Course]
	Notices      *Resource[models.Notice]
	Testimonials *Resource[models.Testimonial]
	News         *Resource[models.NewsItem]
	Students     *Resource[models.User]
}

func NewContent(db *gorm.DB, feed *ChangeFeed) *Content {
	return &Content{
		Courses:      NewResource[models.Course](db, feed, "is_published").WithSearch("title", "category"),
		Notices:      NewResource[models.Notice](db, feed, "is_published").WithSearch("title"),
		Testimonials: NewResource[models.Testimonial](db, feed, "is_published").WithSearch("author_name"),
		News:         NewResource[models.NewsItem](db, feed, "is_published").WithSearch("title", "summary"),
		Students: NewResource[models.User](db, feed, "is_active").
			WithScope(map[string]interface{}{"role": models.RoleStudent}).
			WithSearch("email", "full_name"),
	}
}
