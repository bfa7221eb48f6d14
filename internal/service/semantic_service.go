package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/ai"
	"github.com/xxxsen/semindex/internal/backfill"
	"github.com/xxxsen/semindex/internal/embedcache"
	"github.com/xxxsen/semindex/internal/event"
	"github.com/xxxsen/semindex/internal/filestore"
	"github.com/xxxsen/semindex/internal/indexer"
	"github.com/xxxsen/semindex/internal/model"
	appErr "github.com/xxxsen/semindex/internal/pkg/errors"
	"github.com/xxxsen/semindex/internal/search"
)

type Files interface {
	backfill.Files
	search.Files
}

type Deps struct {
	Bus         *event.Bus
	Encoder     ai.IEncoder
	Store       *EmbeddingStore
	Files       Files
	Collections search.Collections
	Inputs      filestore.Resolver
	Settings    model.Settings

	Dimension      int
	Version        int
	MinSimilarity  float64
	ReloadDebounce time.Duration
	QueryCacheSize int
}

// SemanticService owns the indexing and search components and connects them
// to the lifecycle events published on the bus.
type SemanticService struct {
	bus     *event.Bus
	encoder ai.IEncoder
	store   *EmbeddingStore
	files   Files

	cache      *embedcache.SnapshotCache
	indexer    *indexer.Indexer
	reconciler *backfill.Reconciler
	cleaner    *search.StaleCleaner
	searcher   *search.Service

	settings atomic.Pointer[model.Settings]

	// last indexing control signal from the platform
	controlOn atomic.Bool

	mu     sync.Mutex
	unsubs []func()
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSemanticService(deps Deps) *SemanticService {
	s := &SemanticService{
		bus:     deps.Bus,
		encoder: deps.Encoder,
		store:   deps.Store,
		files:   deps.Files,
	}
	settings := deps.Settings
	s.settings.Store(&settings)
	s.controlOn.Store(true)

	s.cache = embedcache.NewSnapshotCache(deps.Store, deps.Dimension, deps.ReloadDebounce)
	s.indexer = indexer.New(deps.Encoder, deps.Inputs, deps.Store, indexer.Options{
		Dimension: deps.Dimension,
		Version:   deps.Version,
		Paused:    !settings.IndexingAllowed(),
	})
	s.reconciler = backfill.NewReconciler(deps.Files, deps.Store, s.indexer, deps.Encoder, deps.Version, s.Settings)
	s.cleaner = search.NewStaleCleaner(deps.Store)
	queryEncoder := embedcache.WrapLruCacheToEncoder(deps.Encoder, deps.QueryCacheSize)
	s.searcher = search.NewService(queryEncoder, s.cache, deps.Files, deps.Collections, s.cleaner, deps.Dimension, deps.MinSimilarity)
	return s
}

func (s *SemanticService) Settings() model.Settings {
	return *s.settings.Load()
}

// Start registers the event handlers, loads the cache and initializes the
// encoder in the background. A failed initialization leaves indexing idle
// for the rest of the process lifetime.
func (s *SemanticService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.unsubs = append(s.unsubs,
		s.bus.Subscribe(event.TopicItemUploaded, s.onItemUploaded),
		s.bus.Subscribe(event.TopicEmbeddingUpdated, s.onEmbeddingUpdated),
		s.bus.Subscribe(event.TopicSyncComplete, s.onSyncComplete),
		s.bus.Subscribe(event.TopicIndexingControl, s.onIndexingControl),
		s.bus.Subscribe(event.TopicSettingsChanged, s.onSettingsChanged),
	)
	s.mu.Unlock()

	s.store.OnChange(func() {
		s.bus.Publish(s.ctx, event.Event{Topic: event.TopicEmbeddingUpdated})
	})
	s.cache.OnUpdated(func() {
		s.bus.Publish(s.ctx, event.Event{Topic: event.TopicCacheUpdated})
	})
	s.indexer.Start(s.ctx)
	if err := s.cache.Reload(ctx); err != nil {
		return err
	}
	s.goAsync(func(ctx context.Context) {
		logger := logutil.GetLogger(ctx).With(zap.String("model", s.encoder.ModelName()))
		if err := s.encoder.Init(ctx); err != nil {
			logger.Error("init encoder failed, indexing stays inactive", zap.Error(err))
			return
		}
		logger.Info("encoder ready")
		s.runBackfill(ctx)
	})
	return nil
}

func (s *SemanticService) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	cancel := s.cancel
	s.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
	if cancel != nil {
		cancel()
	}
	s.indexer.Stop()
	s.cache.Close()
	s.wg.Wait()
}

func (s *SemanticService) goAsync(fn func(ctx context.Context)) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func (s *SemanticService) onItemUploaded(ctx context.Context, ev event.Event) {
	if ev.Item == nil || !s.Settings().IndexingAllowed() {
		return
	}
	if s.indexer.Enqueue(*ev.Item) {
		logutil.GetLogger(ctx).Debug("uploaded item queued", zap.Int64("item_id", ev.Item.ID))
	}
}

func (s *SemanticService) onEmbeddingUpdated(_ context.Context, _ event.Event) {
	s.cache.Invalidate()
}

func (s *SemanticService) onSyncComplete(_ context.Context, _ event.Event) {
	s.goAsync(func(ctx context.Context) {
		_ = s.SyncEmbeddings(ctx)
	})
}

func (s *SemanticService) onIndexingControl(ctx context.Context, ev event.Event) {
	s.controlOn.Store(ev.ShouldIndex)
	s.applyGate()
	logutil.GetLogger(ctx).Info("indexing control received", zap.Bool("should_index", ev.ShouldIndex))
}

// applyGate opens the indexing gate only while both the settings and the
// last control signal allow indexing.
func (s *SemanticService) applyGate() {
	if s.controlOn.Load() && s.Settings().IndexingAllowed() {
		s.indexer.Resume()
		return
	}
	s.indexer.Pause()
}

func (s *SemanticService) onSettingsChanged(ctx context.Context, ev event.Event) {
	if ev.Settings == nil {
		return
	}
	next := *ev.Settings
	prev := s.settings.Swap(&next)
	logger := logutil.GetLogger(ctx)
	s.applyGate()
	if !next.IndexingAllowed() {
		dropped := s.indexer.Clear()
		logger.Info("semantic indexing disabled", zap.Int("dropped", dropped))
		return
	}
	if prev == nil || !prev.IndexingAllowed() {
		logger.Info("semantic indexing enabled")
		s.goAsync(s.runBackfill)
	}
}

func (s *SemanticService) runBackfill(ctx context.Context) {
	if _, err := s.reconciler.Backfill(ctx); err != nil && ctx.Err() == nil {
		logutil.GetLogger(ctx).Error("backfill failed", zap.Error(err))
	}
}

// Search returns the query that produced the result set together with the
// matching items.
func (s *SemanticService) Search(ctx context.Context, query string) (string, []model.Item, error) {
	if !s.Settings().SemanticSearchEnabled {
		return query, nil, appErr.ErrUnavailable
	}
	return s.searcher.Search(ctx, query)
}

func (s *SemanticService) GetMatchingFileIDs(ctx context.Context, query string) ([]int64, error) {
	if !s.Settings().SemanticSearchEnabled {
		return nil, appErr.ErrUnavailable
	}
	return s.searcher.GetMatchingFileIDs(ctx, query)
}

func (s *SemanticService) Pause() {
	s.controlOn.Store(false)
	s.applyGate()
}

func (s *SemanticService) Resume() {
	s.controlOn.Store(true)
	s.applyGate()
}

type IndexStatus struct {
	indexer.Status
	Cached       int     `json:"cached"`
	Pending      []int64 `json:"pending"`
	StalePending int     `json:"stale_pending"`
	Model        string  `json:"model"`
}

func (s *SemanticService) Status() IndexStatus {
	return IndexStatus{
		Status:       s.indexer.Status(),
		Cached:       s.cache.Len(),
		Pending:      s.indexer.Pending(),
		StalePending: len(s.cleaner.Pending()),
		Model:        s.encoder.ModelName(),
	}
}

func (s *SemanticService) Backfill(ctx context.Context) (int, error) {
	return s.reconciler.Backfill(ctx)
}

// SyncEmbeddings pulls remote embeddings and pushes local changes. A
// successful pull starts a backfill in the background; the backfill waits for
// the encoder, the sync never does.
func (s *SemanticService) SyncEmbeddings(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	start := time.Now()
	fetched, err := s.store.Pull(ctx)
	if err != nil {
		logger.Error("pull remote embeddings failed", zap.Error(err))
		return err
	}
	s.goAsync(s.runBackfill)
	if err := s.store.Push(ctx); err != nil {
		logger.Error("push local embeddings failed", zap.Error(err))
		return err
	}
	logger.Info("embedding sync finished", zap.Bool("fetched", fetched), zap.Duration("duration", time.Since(start)))
	return nil
}

// NotifyUploaded resolves id and publishes the upload event.
func (s *SemanticService) NotifyUploaded(ctx context.Context, id int64) error {
	items, err := s.files.ListUploadedByIDs(ctx, []int64{id})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return appErr.ErrNotFound
	}
	s.bus.Publish(ctx, event.Event{Topic: event.TopicItemUploaded, Item: &items[0]})
	return nil
}

func (s *SemanticService) NotifySync(ctx context.Context) {
	s.bus.Publish(ctx, event.Event{Topic: event.TopicSyncComplete})
}

func (s *SemanticService) SetIndexing(ctx context.Context, on bool) {
	s.bus.Publish(ctx, event.Event{Topic: event.TopicIndexingControl, ShouldIndex: on})
}

func (s *SemanticService) UpdateSettings(ctx context.Context, settings model.Settings) {
	s.bus.Publish(ctx, event.Event{Topic: event.TopicSettingsChanged, Settings: &settings})
}

// FlushStale deletes embeddings whose items disappeared from search results.
func (s *SemanticService) FlushStale(ctx context.Context) error {
	return s.cleaner.Flush(ctx)
}

// Clear drops all local embeddings and queues everything again.
func (s *SemanticService) Clear(ctx context.Context) error {
	s.indexer.Clear()
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.goAsync(s.runBackfill)
	return nil
}

// Drain blocks until the indexing queue has been worked off.
func (s *SemanticService) Drain(ctx context.Context) error {
	return s.indexer.WaitIdle(ctx)
}
