package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/deedox/platform/pkg/logger"
)

// LiveList is an in-memory copy of a resource's rows kept current from the
// change feed. Events that carry a record are merged by row id; anything it
// cannot merge triggers a full refetch.
type LiveList[T Row] struct {
	res     *Resource[T]
	filters map[string]interface{}
	keep    func(*T) bool

	mu   sync.RWMutex
	rows []T
}

// NewLiveList mirrors res.FetchAll(filters). keep must agree with filters so
// that an updated row leaving the filter is dropped; nil keeps everything.
func NewLiveList[T Row](res *Resource[T], filters map[string]interface{}, keep func(*T) bool) *LiveList[T] {
	return &LiveList[T]{res: res, filters: filters, keep: keep}
}

func (l *LiveList[T]) Load(ctx context.Context) error {
	rows, err := l.res.FetchAll(ctx, l.filters)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.rows = rows
	l.mu.Unlock()
	return nil
}

// Items returns a copy of the current rows, newest first.
func (l *LiveList[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.rows))
	copy(out, l.rows)
	return out
}

func (l *LiveList[T]) Watch(feed *ChangeFeed, clientID string) (stop func()) {
	return WatchTable(feed, clientID, l.res.table(), func(ev ChangeEvent) {
		if !l.apply(ev) {
			if err := l.Load(context.Background()); err != nil {
				logger.Warn().Err(err).Str("table", ev.Table).Msg("live list refetch failed")
			}
		}
	})
}

func (l *LiveList[T]) apply(ev ChangeEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.rows {
		if rowKey(l.rows[i].RowID()) == ev.RowID {
			idx = i
			break
		}
	}

	if ev.Type == ChangeDelete {
		if idx >= 0 {
			l.rows = append(l.rows[:idx], l.rows[idx+1:]...)
		}
		return true
	}
	if len(ev.Record) == 0 {
		return false
	}

	var row T
	if err := json.Unmarshal(ev.Record, &row); err != nil {
		return false
	}
	kept := l.keep == nil || l.keep(&row)

	switch {
	case idx >= 0 && kept:
		l.rows[idx] = row
	case idx >= 0:
		l.rows = append(l.rows[:idx], l.rows[idx+1:]...)
	case kept:
		// new rows sort first; a row that re-enters the filter may be older
		// than the head, so refetch to keep the order exact
		if ev.Type == ChangeInsert {
			l.rows = append([]T{row}, l.rows...)
			return true
		}
		return false
	}
	return true
}
