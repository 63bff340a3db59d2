package services

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/deedox/platform/internal/metrics"
	"github.com/deedox/platform/pkg/logger"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent notifies subscribers that a row changed. Record holds the row
// after the change; it is empty for deletes.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Type   ChangeType      `json:"type"`
	RowID  string          `json:"row_id"`
	Record json.RawMessage `json:"record,omitempty"`
}

// EventFilter decides whether one subscriber may receive an event.
type EventFilter func(ChangeEvent) bool

type feedSubscriber struct {
	ch     chan ChangeEvent
	tables map[string]bool // nil = all tables
	allow  EventFilter     // nil = everything
}

func (s *feedSubscriber) wants(event ChangeEvent) bool {
	if s.tables != nil && !s.tables[event.Table] {
		return false
	}
	return s.allow == nil || s.allow(event)
}

// ChangeFeed fans change events out to subscribers. Delivery is best
// effort: a subscriber whose buffer is full misses the event and is
// expected to resynchronise with a full fetch.
type ChangeFeed struct {
	clients map[string]*feedSubscriber
	mu      sync.RWMutex
}

func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{
		clients: make(map[string]*feedSubscriber),
	}
}

// Subscribe registers clientID for the given tables. No tables, or "*",
// subscribes to every table. Subscribing an existing clientID replaces it.
func (f *ChangeFeed) Subscribe(clientID string, tables ...string) <-chan ChangeEvent {
	return f.SubscribeFiltered(clientID, nil, tables...)
}

// SubscribeFiltered is Subscribe with a per-event filter on top of the
// table list. Events rejected by allow are never queued.
func (f *ChangeFeed) SubscribeFiltered(clientID string, allow EventFilter, tables ...string) <-chan ChangeEvent {
	sub := &feedSubscriber{ch: make(chan ChangeEvent, 100), allow: allow}
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t == "*" {
			sub.tables = nil
			break
		}
		if sub.tables == nil {
			sub.tables = make(map[string]bool)
		}
		sub.tables[t] = true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.clients[clientID]; ok {
		close(old.ch)
	} else {
		metrics.FeedSubscribers.Inc()
	}
	f.clients[clientID] = sub
	return sub.ch
}

func (f *ChangeFeed) Unsubscribe(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sub, ok := f.clients[clientID]; ok {
		close(sub.ch)
		delete(f.clients, clientID)
		metrics.FeedSubscribers.Dec()
	}
}

// Publish never blocks. Publishing on a nil feed is a no-op.
func (f *ChangeFeed) Publish(event ChangeEvent) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	metrics.FeedPublished.WithLabelValues(event.Table).Inc()
	for id, sub := range f.clients {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			metrics.FeedDropped.Inc()
			logger.Debug().Str("client_id", id).Str("table", event.Table).Msg("change feed subscriber is slow, event dropped")
		}
	}
}

// PublishRow marshals row into the event record.
func (f *ChangeFeed) PublishRow(table string, typ ChangeType, rowID string, row interface{}) {
	if f == nil {
		return
	}
	event := ChangeEvent{Table: table, Type: typ, RowID: rowID}
	if row != nil {
		raw, err := json.Marshal(row)
		if err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("change event record not serializable")
		} else {
			event.Record = raw
		}
	}
	f.Publish(event)
}

func (f *ChangeFeed) ClientCount() int {
	if f == nil {
		return 0
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// WatchTable calls onEvent for every change to table until stop is called.
// This is the list-screen refresh pattern: onEvent usually refetches.
func WatchTable(feed *ChangeFeed, clientID, table string, onEvent func(ChangeEvent)) (stop func()) {
	events := feed.Subscribe(clientID, table)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(done)
		for ev := range events {
			onEvent(ev)
		}
	}()

	return func() {
		once.Do(func() {
			feed.Unsubscribe(clientID)
			<-done
		})
	}
}

var (
	globalChangeFeed *ChangeFeed
	changeFeedOnce   sync.Once
)

// GetChangeFeed returns the process-wide feed.
func GetChangeFeed() *ChangeFeed {
	changeFeedOnce.Do(func() {
		globalChangeFeed = NewChangeFeed()
	})
	return globalChangeFeed
}
