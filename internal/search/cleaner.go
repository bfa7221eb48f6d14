package search

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Deleter interface {
	DeleteMany(ctx context.Context, ids []int64) error
}

// StaleCleaner batches deletions of embeddings whose item no longer exists.
type StaleCleaner struct {
	deleter Deleter

	mu      sync.Mutex
	pending map[int64]struct{}
	flushMu sync.Mutex
}

func NewStaleCleaner(deleter Deleter) *StaleCleaner {
	return &StaleCleaner{deleter: deleter, pending: make(map[int64]struct{})}
}

// Schedule records ids for deletion and starts a background flush.
func (c *StaleCleaner) Schedule(ids []int64) {
	if len(ids) == 0 {
		return
	}
	c.mu.Lock()
	for _, id := range ids {
		c.pending[id] = struct{}{}
	}
	c.mu.Unlock()
	go func() {
		_ = c.Flush(context.Background())
	}()
}

func (c *StaleCleaner) Pending() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedIDs(c.pending)
}

// Flush deletes every scheduled id. Ids are kept for the next flush when the
// delete fails.
func (c *StaleCleaner) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	ids := sortedIDs(c.pending)
	c.pending = make(map[int64]struct{})
	c.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	if err := c.deleter.DeleteMany(ctx, ids); err != nil {
		logutil.GetLogger(ctx).Error("delete stale embeddings failed", zap.Int("count", len(ids)), zap.Error(err))
		c.mu.Lock()
		for _, id := range ids {
			c.pending[id] = struct{}{}
		}
		c.mu.Unlock()
		return err
	}
	logutil.GetLogger(ctx).Info("stale embeddings deleted", zap.Int("count", len(ids)))
	return nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
