package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin   = "admin"
	RoleStudent = "Student"
)

// User is the account and profile row. Role is compared as a plain string.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password  string         `gorm:"size:255" json:"-"` // bcrypt, empty for OTP-only and LDAP users
	FullName  string         `gorm:"size:200" json:"full_name"`
	Phone     string         `gorm:"size:50" json:"phone"`
	AvatarURL string         `gorm:"size:500" json:"avatar_url"`
	Bio       string         `gorm:"type:text" json:"bio"`
	Role      string         `gorm:"size:20;default:Student;index" json:"role"`
	AuthType  string         `gorm:"size:20;default:local" json:"auth_type"` // local, ldap
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u User) RowID() uint { return u.ID }
