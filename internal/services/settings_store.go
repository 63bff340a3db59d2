package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/pkg/logger"
	"github.com/deedox/platform/pkg/response"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsTable = "site_settings"

// ErrSettingConflict is returned when a versioned write sees a different revision.
var ErrSettingConflict = response.NewConflict("setting was changed by someone else, reload and retry")

// mergeRetries bounds the read-merge-CAS loop of Merge and MutateList.
const mergeRetries = 3

// Setting is a decoded site_settings row. Revision 0 means the value is the
// built-in default and no row exists yet.
type Setting struct {
	Key       string                 `json:"key"`
	Value     map[string]interface{} `json:"value"`
	Revision  int64                  `json:"revision"`
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
}

// SettingsStore is the server-side repository for the key/value settings table.
type SettingsStore struct {
	db   *gorm.DB
	feed *ChangeFeed
}

func NewSettingsStore(db *gorm.DB, feed *ChangeFeed) *SettingsStore {
	return &SettingsStore{db: db, feed: feed}
}

func decodeSetting(row *models.SiteSetting) Setting {
	value := map[string]interface{}{}
	if len(row.Value) > 0 {
		if err := json.Unmarshal(row.Value, &value); err != nil {
			logger.Warn().Err(err).Str("key", row.Key).Msg("setting value is not a JSON object, using default")
			value = models.DefaultSetting(row.Key)
		}
	}
	updated := row.UpdatedAt
	return Setting{Key: row.Key, Value: value, Revision: row.Revision, UpdatedAt: &updated}
}

// LoadAll returns every stored row keyed by setting key.
func (s *SettingsStore) LoadAll(ctx context.Context) (map[string]Setting, error) {
	var rows []models.SiteSetting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := make(map[string]Setting, len(rows))
	for i := range rows {
		out[rows[i].Key] = decodeSetting(&rows[i])
	}
	return out, nil
}

// Get returns the stored value, or the built-in default with revision 0.
func (s *SettingsStore) Get(ctx context.Context, key string) (Setting, error) {
	var row models.SiteSetting
	err := s.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Setting{Key: key, Value: models.DefaultSetting(key)}, nil
	}
	if err != nil {
		return Setting{}, fmt.Errorf("get setting %s: %w", key, err)
	}
	return decodeSetting(&row), nil
}

// Put replaces the whole value of key.
//
// With expectedRevision nil the write is last-writer-wins. Otherwise it is
// compare-and-swap: 0 means the row must not exist yet, any other value must
// equal the stored revision. A mismatch returns ErrSettingConflict.
func (s *SettingsStore) Put(ctx context.Context, key string, value map[string]interface{}, expectedRevision *int64, userID *uint) (Setting, error) {
	if value == nil {
		value = map[string]interface{}{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Setting{}, response.NewBadRequest("setting value is not serializable: " + err.Error())
	}

	db := s.db.WithContext(ctx)
	now := time.Now()

	switch {
	case expectedRevision == nil:
		row := models.SiteSetting{Key: key, Value: datatypes.JSON(raw), Revision: 1, UpdatedBy: userID}
		err = db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"value":      datatypes.JSON(raw),
				"revision":   gorm.Expr("site_settings.revision + 1"),
				"updated_by": userID,
				"updated_at": now,
			}),
		}).Create(&row).Error
	case *expectedRevision == 0:
		row := models.SiteSetting{Key: key, Value: datatypes.JSON(raw), Revision: 1, UpdatedBy: userID}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		err = res.Error
		if err == nil && res.RowsAffected == 0 {
			return Setting{}, ErrSettingConflict
		}
	default:
		res := db.Model(&models.SiteSetting{}).
			Where(map[string]interface{}{"key": key, "revision": *expectedRevision}).
			Updates(map[string]interface{}{
				"value":      datatypes.JSON(raw),
				"revision":   gorm.Expr("revision + 1"),
				"updated_by": userID,
				"updated_at": now,
			})
		err = res.Error
		if err == nil && res.RowsAffected == 0 {
			return Setting{}, ErrSettingConflict
		}
	}
	if err != nil {
		return Setting{}, fmt.Errorf("save setting %s: %w", key, err)
	}

	var saved models.SiteSetting
	if err := db.Where(map[string]interface{}{"key": key}).Take(&saved).Error; err != nil {
		return Setting{}, fmt.Errorf("reload setting %s: %w", key, err)
	}
	setting := decodeSetting(&saved)
	s.publish(setting)
	return setting, nil
}

func (s *SettingsStore) publish(setting Setting) {
	typ := ChangeUpdate
	if setting.Revision == 1 {
		typ = ChangeInsert
	}
	s.feed.PublishRow(settingsTable, typ, setting.Key, setting)
}

// Merge shallow-merges partial into the stored value. Without an expected
// revision it retries the read-merge-write cycle on concurrent changes.
func (s *SettingsStore) Merge(ctx context.Context, key string, partial map[string]interface{}, expectedRevision *int64, userID *uint) (Setting, error) {
	return s.update(ctx, key, expectedRevision, userID, func(current map[string]interface{}) (map[string]interface{}, error) {
		return ShallowMerge(current, partial), nil
	})
}

// MutateList applies fn to the "items" array of key and stores the result.
func (s *SettingsStore) MutateList(ctx context.Context, key string, userID *uint, fn func(items []map[string]interface{}) ([]map[string]interface{}, error)) (Setting, error) {
	return s.update(ctx, key, nil, userID, func(current map[string]interface{}) (map[string]interface{}, error) {
		items, err := fn(ListItems(current))
		if err != nil {
			return nil, err
		}
		next := ShallowMerge(current, nil)
		next["items"] = items
		return next, nil
	})
}

func (s *SettingsStore) update(ctx context.Context, key string, expectedRevision *int64, userID *uint, fn func(map[string]interface{}) (map[string]interface{}, error)) (Setting, error) {
	for attempt := 0; ; attempt++ {
		current, err := s.Get(ctx, key)
		if err != nil {
			return Setting{}, err
		}
		if expectedRevision != nil && *expectedRevision != current.Revision {
			return Setting{}, ErrSettingConflict
		}
		next, err := fn(current.Value)
		if err != nil {
			return Setting{}, err
		}
		rev := current.Revision
		saved, err := s.Put(ctx, key, next, &rev, userID)
		if errors.Is(err, ErrSettingConflict) && expectedRevision == nil && attempt < mergeRetries-1 {
			continue
		}
		return saved, err
	}
}

// Delete removes key so readers fall back to the built-in default.
func (s *SettingsStore) Delete(ctx context.Context, key string) (bool, error) {
	res := s.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).Delete(&models.SiteSetting{})
	if res.Error != nil {
		return false, fmt.Errorf("delete setting %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.feed.PublishRow(settingsTable, ChangeDelete, key, nil)
	return true, nil
}

// ShallowMerge copies base and overlays the top-level keys of partial.
func ShallowMerge(base, partial map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// ListItems extracts the object elements of value["items"].
func ListItems(value map[string]interface{}) []map[string]interface{} {
	raw, _ := value["items"].([]interface{})
	items := make([]map[string]interface{}, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]interface{}); ok {
			items = append(items, ShallowMerge(m, nil))
		}
	}
	if typed, ok := value["items"].([]map[string]interface{}); ok {
		for _, m := range typed {
			items = append(items, ShallowMerge(m, nil))
		}
	}
	return items
}
