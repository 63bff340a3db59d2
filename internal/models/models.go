package models

import "time"

// Course is a catalogue entry shown on the public site when published.
type Course struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title" binding:"required,max=200"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:100;index" json:"category"`
	Level       string    `gorm:"size:50" json:"level"`
	Duration    string    `gorm:"size:50" json:"duration"`
	Price       float64   `json:"price"`
	ImageURL    string    `gorm:"size:600" json:"image_url"`
	IsPublished bool      `gorm:"default:false;index" json:"is_published"`
	CreatedBy   *uint     `json:"created_by"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Course) TableName() string { return "courses" }

type Notice struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title" binding:"required,max=200"`
	Content     string    `gorm:"type:text" json:"content"`
	Audience    string    `gorm:"size:50;default:all" json:"audience" binding:"omitempty,oneof=all students"` // all, students
	IsPublished bool      `gorm:"default:false;index" json:"is_published"`
	CreatedBy   *uint     `json:"created_by"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Notice) TableName() string { return "notices" }

type Testimonial struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AuthorName  string    `gorm:"size:150;not null" json:"author_name" binding:"required,max=150"`
	AuthorRole  string    `gorm:"size:150" json:"author_role"`
	Content     string    `gorm:"type:text;not null" json:"content" binding:"required"`
	AvatarURL   string    `gorm:"size:600" json:"avatar_url"`
	Rating      int       `gorm:"default:5" json:"rating" binding:"omitempty,min=1,max=5"`
	IsPublished bool      `gorm:"default:false;index" json:"is_published"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Testimonial) TableName() string { return "testimonials" }

type NewsItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title" binding:"required,max=200"`
	Summary     string    `gorm:"size:500" json:"summary"`
	Body        string    `gorm:"type:text" json:"body"`
	ImageURL    string    `gorm:"size:600" json:"image_url"`
	Link        string    `gorm:"size:600" json:"link"`
	IsPublished bool      `gorm:"default:false;index" json:"is_published"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (NewsItem) TableName() string { return "news_items" }

func (c Course) RowID() uint      { return c.ID }
func (n Notice) RowID() uint      { return n.ID }
func (t Testimonial) RowID() uint { return t.ID }
func (n NewsItem) RowID() uint    { return n.ID }
