package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/model"
	appErr "github.com/xxxsen/semindex/internal/pkg/errors"
	"github.com/xxxsen/semindex/internal/remote"
	"github.com/xxxsen/semindex/internal/repo"
)

const (
	syncStateRemotePull = "remote_pull"
	pushBatchSize       = 200
	maxPushRounds       = 1000
)

// EmbeddingStore persists embeddings locally and mirrors them to the remote
// store when one is configured. Every local mutation fires the change hook.
type EmbeddingStore struct {
	embeddings *repo.EmbeddingRepo
	remote     remote.Remote
	dimension  int

	syncMu   sync.Mutex
	hookMu   sync.RWMutex
	onChange func()
}

func NewEmbeddingStore(embeddings *repo.EmbeddingRepo, r remote.Remote, dimension int) *EmbeddingStore {
	return &EmbeddingStore{embeddings: embeddings, remote: r, dimension: dimension}
}

func (s *EmbeddingStore) OnChange(fn func()) {
	s.hookMu.Lock()
	s.onChange = fn
	s.hookMu.Unlock()
}

func (s *EmbeddingStore) changed() {
	s.hookMu.RLock()
	fn := s.onChange
	s.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (s *EmbeddingStore) GetAll(ctx context.Context) ([]model.Embedding, error) {
	return s.embeddings.ListAll(ctx)
}

func (s *EmbeddingStore) Put(ctx context.Context, emb *model.Embedding) error {
	stored := *emb
	stored.Mtime = time.Now().UnixMilli()
	if err := s.embeddings.Upsert(ctx, &stored, s.remote != nil); err != nil {
		return err
	}
	s.changed()
	return nil
}

func (s *EmbeddingStore) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.embeddings.DeleteByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if s.remote != nil {
		if err := s.remote.Delete(ctx, ids); err != nil {
			logutil.GetLogger(ctx).Warn("delete remote embeddings failed", zap.Int("count", len(ids)), zap.Error(err))
		}
	}
	if n > 0 {
		s.changed()
	}
	return nil
}

func (s *EmbeddingStore) GetIndexedIDsWithVersion(ctx context.Context) (map[int64]int, error) {
	return s.embeddings.ListIndexedVersions(ctx)
}

// Pull imports remote embeddings changed since the last pull and reports
// whether anything new was stored. A remote row only replaces a local row
// produced by an older encoder version.
func (s *EmbeddingStore) Pull(ctx context.Context) (bool, error) {
	if s.remote == nil {
		return false, nil
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	logger := logutil.GetLogger(ctx)
	watermark, err := s.embeddings.GetSyncState(ctx, syncStateRemotePull)
	if err != nil {
		return false, err
	}
	objects, err := s.remote.List(ctx, time.UnixMilli(watermark))
	if err != nil {
		return false, err
	}
	fetched := 0
	failed := false
	latest := watermark
	for _, obj := range objects {
		emb, err := s.remote.Fetch(ctx, obj.Key)
		if err != nil {
			logger.Warn("fetch remote embedding failed", zap.String("key", obj.Key), zap.Error(err))
			failed = true
			continue
		}
		emb.ItemID = obj.ItemID
		newer, err := s.isNewer(ctx, emb)
		if err != nil {
			return fetched > 0, err
		}
		if newer && !emb.IsEmpty() && len(emb.Vector) != s.dimension {
			// left out so the item stays in the backfill gap
			logger.Warn("skip remote embedding with unexpected dimension",
				zap.Int64("item_id", obj.ItemID), zap.Int("got", len(emb.Vector)), zap.Int("want", s.dimension))
			newer = false
		}
		if newer {
			if err := s.embeddings.Upsert(ctx, emb, false); err != nil {
				return fetched > 0, err
			}
			fetched++
		}
		if ms := obj.Modified.UnixMilli(); ms > latest {
			latest = ms
		}
	}
	// a failed fetch is retried on the next pull
	if !failed && latest > watermark {
		if err := s.embeddings.SetSyncState(ctx, syncStateRemotePull, latest); err != nil {
			return fetched > 0, err
		}
	}
	if fetched > 0 {
		logger.Info("remote embeddings pulled", zap.Int("count", fetched))
		s.changed()
	}
	return fetched > 0, nil
}

func (s *EmbeddingStore) isNewer(ctx context.Context, emb *model.Embedding) (bool, error) {
	local, err := s.embeddings.Get(ctx, emb.ItemID)
	if errors.Is(err, appErr.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return emb.Version > local.Version, nil
}

// Push uploads every locally modified embedding to the remote store.
func (s *EmbeddingStore) Push(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	pushed := 0
	for round := 0; round < maxPushRounds; round++ {
		batch, err := s.embeddings.ListDirty(ctx, pushBatchSize)
		if err != nil {
			return err
		}
		for i := range batch {
			if err := s.remote.Upload(ctx, &batch[i]); err != nil {
				return err
			}
			if err := s.embeddings.MarkClean(ctx, batch[i].ItemID, batch[i].Mtime); err != nil {
				return err
			}
			pushed++
		}
		if len(batch) < pushBatchSize {
			break
		}
	}
	if pushed > 0 {
		logutil.GetLogger(ctx).Info("local embeddings pushed", zap.Int("count", pushed))
	}
	return nil
}

// Clear drops every local embedding and the pull watermark. The remote copy
// is kept.
func (s *EmbeddingStore) Clear(ctx context.Context) error {
	if err := s.embeddings.DeleteAll(ctx); err != nil {
		return err
	}
	s.changed()
	return nil
}
