package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/pkg/logger"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

var ErrListItemNotFound = errors.New("list item not found")

// SettingsAggregator holds one session's snapshot of every settings key.
// Writes merge into the snapshot first and then replace the whole stored
// value, so concurrent sessions are last-writer-wins per key.
type SettingsAggregator struct {
	store  *SettingsStore
	userID *uint

	mu        sync.RWMutex
	values    map[string]map[string]interface{}
	revisions map[string]int64
}

func NewSettingsAggregator(store *SettingsStore) *SettingsAggregator {
	return &SettingsAggregator{
		store:     store,
		values:    make(map[string]map[string]interface{}),
		revisions: make(map[string]int64),
	}
}

// ForUser records userID as the author of writes from this session.
func (a *SettingsAggregator) ForUser(userID uint) *SettingsAggregator {
	a.userID = &userID
	return a
}

// Load replaces the snapshot with one bulk read. Keys without a row get
// their built-in default.
func (a *SettingsAggregator) Load(ctx context.Context) error {
	stored, err := a.store.LoadAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("settings load failed")
		return err
	}

	values := make(map[string]map[string]interface{}, len(stored))
	revisions := make(map[string]int64, len(stored))
	for key, def := range models.DefaultSettings() {
		values[key] = def
	}
	for key, s := range stored {
		values[key] = s.Value
		revisions[key] = s.Revision
	}

	a.mu.Lock()
	a.values = values
	a.revisions = revisions
	a.mu.Unlock()
	return nil
}

// Get returns a copy of key's value, or its default. Never nil.
func (a *SettingsAggregator) Get(key string) map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if v, ok := a.values[key]; ok {
		return ShallowMerge(v, nil)
	}
	return models.DefaultSetting(key)
}

// Revision is the stored revision the snapshot saw for key, 0 if none.
func (a *SettingsAggregator) Revision(key string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.revisions[key]
}

// All returns a copy of the whole snapshot.
func (a *SettingsAggregator) All() map[string]map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]map[string]interface{}, len(a.values))
	for k, v := range a.values {
		out[k] = ShallowMerge(v, nil)
	}
	return out
}

func (a *SettingsAggregator) String(key, field string) string {
	return cast.ToString(a.Get(key)[field])
}

func (a *SettingsAggregator) Bool(key, field string) bool {
	return cast.ToBool(a.Get(key)[field])
}

func (a *SettingsAggregator) Int(key, field string) int {
	return cast.ToInt(a.Get(key)[field])
}

// Set shallow-merges partial into the snapshot and stores the merged
// object. On failure the error is logged, the snapshot is reloaded from the
// store and the error is returned.
func (a *SettingsAggregator) Set(ctx context.Context, key string, partial map[string]interface{}) error {
	a.mu.Lock()
	current, ok := a.values[key]
	if !ok {
		current = models.DefaultSetting(key)
	}
	merged := ShallowMerge(current, partial)
	a.values[key] = merged
	a.mu.Unlock()

	saved, err := a.store.Put(ctx, key, merged, nil, a.userID)
	if err != nil {
		logger.Error().Err(err).Str("key", key).Msg("settings write failed, reloading snapshot")
		if rerr := a.Load(ctx); rerr != nil {
			logger.Warn().Err(rerr).Str("key", key).Msg("settings reload after failed write also failed")
		}
		return err
	}

	a.mu.Lock()
	if saved.Revision >= a.revisions[key] {
		a.values[key] = saved.Value
		a.revisions[key] = saved.Revision
	}
	a.mu.Unlock()
	return nil
}

// List returns CRUD helpers for the {items: [...]} array stored under key.
func (a *SettingsAggregator) List(key string) *ListCrud {
	return &ListCrud{agg: a, key: key}
}

// Watch keeps the snapshot current from feed until stop is called. Events
// that carry the row are merged by key; anything else triggers a full Load.
func (a *SettingsAggregator) Watch(feed *ChangeFeed, clientID string) (stop func()) {
	return WatchTable(feed, clientID, settingsTable, func(ev ChangeEvent) {
		if !a.apply(ev) {
			if err := a.Load(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("settings refresh after change event failed")
			}
		}
	})
}

// apply merges a single change event and reports whether it could.
func (a *SettingsAggregator) apply(ev ChangeEvent) bool {
	if ev.Table != settingsTable || ev.RowID == "" {
		return false
	}

	if ev.Type == ChangeDelete {
		a.mu.Lock()
		a.values[ev.RowID] = models.DefaultSetting(ev.RowID)
		delete(a.revisions, ev.RowID)
		a.mu.Unlock()
		return true
	}

	if len(ev.Record) == 0 {
		return false
	}
	var rec Setting
	if err := json.Unmarshal(ev.Record, &rec); err != nil || rec.Value == nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// older than what this session already has
	if rec.Revision != 0 && rec.Revision < a.revisions[ev.RowID] {
		return true
	}
	a.values[ev.RowID] = rec.Value
	a.revisions[ev.RowID] = rec.Revision
	return true
}

// ListCrud edits one array-of-objects setting. Every mutation rewrites the
// whole array through SettingsAggregator.Set.
type ListCrud struct {
	agg *SettingsAggregator
	key string
}

func (l *ListCrud) Items() []map[string]interface{} {
	return ListItems(l.agg.Get(l.key))
}

// Add appends item, assigning a uuid id when it has none.
func (l *ListCrud) Add(ctx context.Context, item map[string]interface{}) (map[string]interface{}, error) {
	item = ShallowMerge(item, nil)
	if cast.ToString(item["id"]) == "" {
		item["id"] = uuid.New().String()
	}
	items := append(l.Items(), item)
	if err := l.save(ctx, items); err != nil {
		return nil, err
	}
	return item, nil
}

// Update shallow-merges patch into the item with id.
func (l *ListCrud) Update(ctx context.Context, id string, patch map[string]interface{}) (map[string]interface{}, error) {
	items := l.Items()
	for i, it := range items {
		if cast.ToString(it["id"]) != id {
			continue
		}
		next := ShallowMerge(it, patch)
		next["id"] = it["id"]
		items[i] = next
		if err := l.save(ctx, items); err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("%s/%s: %w", l.key, id, ErrListItemNotFound)
}

// Remove deletes the item with id. A missing id is not an error.
func (l *ListCrud) Remove(ctx context.Context, id string) (bool, error) {
	items := l.Items()
	kept := items[:0]
	for _, it := range items {
		if cast.ToString(it["id"]) != id {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return false, nil
	}
	if err := l.save(ctx, kept); err != nil {
		return false, err
	}
	return true, nil
}

func (l *ListCrud) save(ctx context.Context, items []map[string]interface{}) error {
	arr := make([]interface{}, len(items))
	for i, it := range items {
		arr[i] = it
	}
	return l.agg.Set(ctx, l.key, map[string]interface{}{"items": arr})
}
