package services

import (
	"context"
	"strings"

	"github.com/deedox/platform/internal/models"
	"gorm.io/gorm"
)

type ProfileService struct {
	db   *gorm.DB
	feed *ChangeFeed
}

func NewProfileService(db *gorm.DB, feed *ChangeFeed) *ProfileService {
	return &ProfileService{db: db, feed: feed}
}

type UpdateProfileRequest struct {
	FullName  *string `json:"full_name" binding:"omitempty,max=150"`
	Phone     *string `json:"phone" binding:"omitempty,max=50"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=600"`
	Bio       *string `json:"bio" binding:"omitempty,max=2000"`
}

func (s *ProfileService) Get(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Update changes only the fields present in req.
func (s *ProfileService) Update(ctx context.Context, userID uint, req *UpdateProfileRequest) (*models.User, error) {
	updates := make(map[string]interface{})
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		s.feed.PublishRow(u.TableName(), ChangeUpdate, rowKey(u.ID), u)
	}
	return u, nil
}
