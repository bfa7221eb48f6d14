// Package event carries lifecycle signals between the components. Handlers
// are registered explicitly by the owner at startup.
package event

import (
	"context"
	"sync"

	"github.com/xxxsen/semindex/internal/model"
)

type Topic string

const (
	TopicItemUploaded     Topic = "item_uploaded"
	TopicEmbeddingUpdated Topic = "embedding_updated"
	TopicSyncComplete     Topic = "sync_complete"
	TopicIndexingControl  Topic = "indexing_control"
	TopicSettingsChanged  Topic = "settings_changed"
	TopicCacheUpdated     Topic = "cache_updated"
)

type Event struct {
	Topic    Topic
	Item     *model.Item
	Settings *model.Settings
	// ShouldIndex carries the indexing control signal.
	ShouldIndex bool
}

type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id      uint64
	handler Handler
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers h for topic and returns a function removing it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish runs the handlers of ev.Topic synchronously in registration order.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.handler(ctx, ev)
	}
}
