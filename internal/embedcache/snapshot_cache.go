// Package embedcache holds the in-memory embedding snapshot used for search
// and the query text embedding cache.
package embedcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/model"
)

const DefaultReloadDebounce = 4000 * time.Millisecond

type Source interface {
	GetAll(ctx context.Context) ([]model.Embedding, error)
}

type snapshot struct {
	items []model.Embedding
}

// SnapshotCache keeps every valid embedding in memory. Each reload replaces
// the whole set; readers see either the previous or the new snapshot.
type SnapshotCache struct {
	source    Source
	dimension int
	debounced func(f func())

	current  atomic.Pointer[snapshot]
	reloadMu sync.Mutex

	mu        sync.Mutex
	listeners []func()
	closed    bool
}

func NewSnapshotCache(source Source, dimension int, debounceWindow time.Duration) *SnapshotCache {
	if debounceWindow <= 0 {
		debounceWindow = DefaultReloadDebounce
	}
	c := &SnapshotCache{
		source:    source,
		dimension: dimension,
		debounced: debounce.New(debounceWindow),
	}
	c.current.Store(&snapshot{})
	return c
}

// OnUpdated registers fn to run after every successful reload.
func (c *SnapshotCache) OnUpdated(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *SnapshotCache) Reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	logger := logutil.GetLogger(ctx)
	items, err := c.source.GetAll(ctx)
	if err != nil {
		logger.Error("load embeddings for cache failed", zap.Error(err))
		return err
	}
	valid := make([]model.Embedding, 0, len(items))
	invalid := 0
	for _, item := range items {
		if item.IsEmpty() {
			continue
		}
		if len(item.Vector) != c.dimension {
			invalid++
			continue
		}
		valid = append(valid, item)
	}
	if invalid > 0 {
		logger.Warn("skip embeddings with unexpected dimension", zap.Int("count", invalid), zap.Int("dimension", c.dimension))
	}
	c.current.Store(&snapshot{items: valid})
	logger.Debug("embedding cache reloaded", zap.Int("count", len(valid)))

	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Snapshot returns the current complete set. The slice is shared and must not
// be modified.
func (c *SnapshotCache) Snapshot() []model.Embedding {
	return c.current.Load().items
}

func (c *SnapshotCache) Len() int {
	return len(c.current.Load().items)
}

// Invalidate schedules a reload; a burst of calls within the debounce window
// produces a single reload.
func (c *SnapshotCache) Invalidate() {
	c.debounced(func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		_ = c.Reload(context.Background())
	})
}

// Close stops pending debounced reloads from running.
func (c *SnapshotCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
