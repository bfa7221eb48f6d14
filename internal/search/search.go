// Package search answers natural-language queries against the embedding
// snapshot.
package search

import (
	"context"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/model"
	"github.com/xxxsen/semindex/internal/similarity"
)

type TextEncoder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type Snapshotter interface {
	Snapshot() []model.Embedding
}

type Files interface {
	ResolveIDs(ctx context.Context, ids []int64) (map[int64]model.Item, error)
}

type Collections interface {
	ListHiddenIDs(ctx context.Context) (map[int64]struct{}, error)
}

type outcome struct {
	query string
	items []model.Item
}

// Service runs at most one search computation at a time. A query issued while
// one is running replaces any query already waiting, and everyone waiting when
// the newest query finishes receives its result.
type Service struct {
	encoder       TextEncoder
	cache         Snapshotter
	files         Files
	collections   Collections
	cleaner       *StaleCleaner
	dimension     int
	minSimilarity float64

	mu         sync.Mutex
	running    bool
	hasPending bool
	pending    string
	waiters    []chan outcome
}

func NewService(encoder TextEncoder, cache Snapshotter, files Files, collections Collections, cleaner *StaleCleaner, dimension int, minSimilarity float64) *Service {
	return &Service{
		encoder:       encoder,
		cache:         cache,
		files:         files,
		collections:   collections,
		cleaner:       cleaner,
		dimension:     dimension,
		minSimilarity: minSimilarity,
	}
}

// Search returns the ranked items for the most recent query issued while the
// caller was waiting, together with that query.
func (s *Service) Search(ctx context.Context, query string) (string, []model.Item, error) {
	ch := make(chan outcome, 1)
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	if s.running {
		s.pending = query
		s.hasPending = true
		s.mu.Unlock()
	} else {
		s.running = true
		s.mu.Unlock()
		go s.dispatch(context.WithoutCancel(ctx), query)
	}
	select {
	case out := <-ch:
		return out.query, out.items, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (s *Service) dispatch(ctx context.Context, query string) {
	for {
		items := s.compute(ctx, query)
		s.mu.Lock()
		if s.hasPending {
			query = s.pending
			s.pending = ""
			s.hasPending = false
			s.mu.Unlock()
			continue
		}
		waiters := s.waiters
		s.waiters = nil
		s.running = false
		s.mu.Unlock()
		for _, ch := range waiters {
			ch <- outcome{query: query, items: items}
		}
		return
	}
}

// GetMatchingFileIDs runs the search pipeline directly and returns only the
// ids of visible, live items.
func (s *Service) GetMatchingFileIDs(ctx context.Context, query string) ([]int64, error) {
	items := s.compute(ctx, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// compute never fails the caller: every error degrades to an empty result.
func (s *Service) compute(ctx context.Context, query string) []model.Item {
	logger := logutil.GetLogger(ctx).With(zap.String("query", query))
	text := strings.TrimSpace(query)
	if text == "" {
		return nil
	}
	vector, err := s.encoder.EmbedText(ctx, text)
	if err != nil {
		logger.Error("embed search query failed", zap.Error(err))
		return nil
	}
	results, err := similarity.RankBulk(ctx, s.cache.Snapshot(), vector, s.dimension, s.minSimilarity)
	if err != nil {
		logger.Error("rank embeddings failed", zap.Error(err))
		return nil
	}
	if len(results) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ItemID)
	}
	resolved, err := s.files.ResolveIDs(ctx, ids)
	if err != nil {
		logger.Error("resolve search results failed", zap.Error(err))
		return nil
	}
	hidden, err := s.collections.ListHiddenIDs(ctx)
	if err != nil {
		logger.Error("load hidden collections failed", zap.Error(err))
		return nil
	}
	items := make([]model.Item, 0, len(results))
	var stale []int64
	for _, r := range results {
		item, ok := resolved[r.ItemID]
		if !ok {
			stale = append(stale, r.ItemID)
			continue
		}
		if _, isHidden := hidden[item.CollectionID]; isHidden {
			continue
		}
		items = append(items, item)
	}
	if len(stale) > 0 && s.cleaner != nil {
		logger.Info("drop stale embeddings from results", zap.Int("count", len(stale)))
		s.cleaner.Schedule(stale)
	}
	logger.Debug("search finished", zap.Int("matches", len(items)))
	return items
}
