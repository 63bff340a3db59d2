package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/utils"
	"github.com/deedox/platform/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	CredentialSourceDatabase = "database"
	CredentialSourceConfig   = "config"
)

// CredentialService owns the shared AI provider key. Plaintext only leaves
// it through ProviderKey, which is called in-process and never exposed over
// HTTP.
type CredentialService struct {
	db       *gorm.DB
	box      *utils.SecretBox
	fallback string
}

// NewCredentialService seals stored keys with box. fallback is the key from
// configuration used when no database credential exists.
func NewCredentialService(db *gorm.DB, box *utils.SecretBox, fallback string) *CredentialService {
	return &CredentialService{db: db, box: box, fallback: strings.TrimSpace(fallback)}
}

type CredentialPreview struct {
	Name      string     `json:"name"`
	IsSet     bool       `json:"is_set"`
	Masked    string     `json:"masked,omitempty"`
	Source    string     `json:"source,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Set stores key as the shared provider credential.
func (s *CredentialService) Set(ctx context.Context, key string, userID *uint) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return response.NewBadRequest("credential value is empty")
	}
	sealed, err := s.box.Seal(key)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	row := models.SystemCredential{Name: models.CredentialAIProvider, Ciphertext: sealed, UpdatedBy: userID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"ciphertext": sealed,
			"updated_by": userID,
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
}

// Clear removes the stored credential; the configuration fallback, if any,
// applies again.
func (s *CredentialService) Clear(ctx context.Context) (bool, error) {
	res := s.db.WithContext(ctx).Where("name = ?", models.CredentialAIProvider).Delete(&models.SystemCredential{})
	return res.RowsAffected > 0, res.Error
}

// ProviderKey returns the plaintext key and where it came from. An empty key
// with a nil error means no credential is configured anywhere.
func (s *CredentialService) ProviderKey(ctx context.Context) (string, string, error) {
	var row models.SystemCredential
	err := s.db.WithContext(ctx).Where("name = ?", models.CredentialAIProvider).Take(&row).Error
	switch {
	case err == nil:
		key, err := s.box.Open(row.Ciphertext)
		if err != nil {
			return "", "", err
		}
		if key != "" {
			return key, CredentialSourceDatabase, nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", "", fmt.Errorf("read credential: %w", err)
	}

	if s.fallback != "" {
		return s.fallback, CredentialSourceConfig, nil
	}
	return "", "", nil
}

// Preview describes the credential without revealing it.
func (s *CredentialService) Preview(ctx context.Context) (*CredentialPreview, error) {
	p := &CredentialPreview{Name: models.CredentialAIProvider}

	var row models.SystemCredential
	err := s.db.WithContext(ctx).Where("name = ?", models.CredentialAIProvider).Take(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		p.UpdatedAt = &row.UpdatedAt
	}

	key, source, err := s.ProviderKey(ctx)
	if err != nil {
		return nil, err
	}
	if key != "" {
		p.IsSet = true
		p.Masked = utils.MaskSecret(key)
		p.Source = source
	}
	return p, nil
}
