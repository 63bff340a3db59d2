package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/pkg/response"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uploadsTable = "uploads"

var allowedUploadTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// StorageService keeps uploaded files in a local bucket directory served
// under cfg.PublicURL. The file write and any row that later references the
// URL are independent operations.
type StorageService struct {
	db   *gorm.DB
	feed *ChangeFeed
	cfg  config.StorageConfig
	now  func() time.Time
}

func NewStorageService(db *gorm.DB, feed *ChangeFeed, cfg config.StorageConfig) *StorageService {
	return &StorageService{db: db, feed: feed, cfg: cfg, now: time.Now}
}

// Root is the directory served as the public URL prefix.
func (s *StorageService) Root() string {
	return s.cfg.Dir
}

func (s *StorageService) maxBytes() int64 {
	if s.cfg.MaxSizeMB <= 0 {
		return 10 << 20
	}
	return int64(s.cfg.MaxSizeMB) << 20
}

// Save stores r and records it. The content type is sniffed, not trusted
// from the client.
func (s *StorageService) Save(ctx context.Context, r io.Reader, userID *uint) (*models.Upload, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, response.NewBadRequest("file is empty")
	}

	contentType := http.DetectContentType(head)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := allowedUploadTypes[contentType]
	if !ok {
		return nil, response.NewBadRequest("unsupported file type " + contentType)
	}

	id := uuid.NewString()
	now := s.now()
	key := path.Join(now.Format("2006/01"), id+ext)
	dst := filepath.Join(s.cfg.Dir, s.cfg.Bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	limit := s.maxBytes()
	written, err := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), r), limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("write object: %w", err)
	}
	if written > limit {
		os.Remove(dst)
		return nil, response.NewBadRequest(fmt.Sprintf("file exceeds %d MB", limit>>20))
	}

	up := &models.Upload{
		ID:          id,
		Bucket:      s.cfg.Bucket,
		ObjectKey:   key,
		URL:         strings.TrimRight(s.cfg.PublicURL, "/") + "/" + s.cfg.Bucket + "/" + key,
		ContentType: contentType,
		Size:        written,
		UploadedBy:  userID,
		CreatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(up).Error; err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}
	s.feed.PublishRow(uploadsTable, ChangeInsert, up.ID, up)
	return up, nil
}

func (s *StorageService) List(ctx context.Context, page, pageSize int) ([]models.Upload, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	q := s.db.WithContext(ctx).Model(&models.Upload{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.Upload
	err := q.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error
	return items, total, err
}
