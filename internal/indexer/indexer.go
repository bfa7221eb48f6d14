// Package indexer computes embeddings for queued items on a single background
// worker.
package indexer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/ai"
	"github.com/xxxsen/semindex/internal/filestore"
	"github.com/xxxsen/semindex/internal/model"
)

type Store interface {
	Put(ctx context.Context, emb *model.Embedding) error
}

type Options struct {
	Dimension int
	Version   int
	Paused    bool
}

type Status struct {
	Queued    int    `json:"queued"`
	Computing bool   `json:"computing"`
	Paused    bool   `json:"paused"`
	Indexed   uint64 `json:"indexed"`
	Empty     uint64 `json:"empty"`
	Dropped   uint64 `json:"dropped"`
}

// Indexer owns the pending queue. Items are served most recently enqueued
// first; an item is never queued twice while pending or in flight.
type Indexer struct {
	encoder ai.IEncoder
	inputs  filestore.Resolver
	store   Store
	opts    Options
	gate    *Gate

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	stack     []model.Item
	tracked   map[int64]struct{}
	computing bool
	idle      chan struct{}
	wg        sync.WaitGroup

	indexed atomic.Uint64
	empty   atomic.Uint64
	dropped atomic.Uint64
}

func New(encoder ai.IEncoder, inputs filestore.Resolver, store Store, opts Options) *Indexer {
	return &Indexer{
		encoder: encoder,
		inputs:  inputs,
		store:   store,
		opts:    opts,
		gate:    NewGate(!opts.Paused),
		tracked: make(map[int64]struct{}),
		idle:    closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Start enables the worker loop. Items enqueued earlier are drained now.
func (ix *Indexer) Start(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.ctx != nil {
		return
	}
	ix.ctx, ix.cancel = context.WithCancel(ctx)
	ix.kickLocked()
}

// Stop cancels the loop and waits for the item in flight to finish.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	cancel := ix.cancel
	ix.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	ix.wg.Wait()
}

// Enqueue adds item unless it is already pending or in flight and reports
// whether it was added.
func (ix *Indexer) Enqueue(item model.Item) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	added := ix.pushLocked(item)
	ix.kickLocked()
	return added
}

func (ix *Indexer) EnqueueMany(items []model.Item) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	added := 0
	for _, item := range items {
		if ix.pushLocked(item) {
			added++
		}
	}
	ix.kickLocked()
	return added
}

func (ix *Indexer) pushLocked(item model.Item) bool {
	if _, ok := ix.tracked[item.ID]; ok {
		return false
	}
	ix.tracked[item.ID] = struct{}{}
	ix.stack = append(ix.stack, item)
	return true
}

func (ix *Indexer) kickLocked() {
	if ix.ctx == nil || ix.computing || len(ix.stack) == 0 {
		return
	}
	ix.computing = true
	ix.idle = make(chan struct{})
	ix.wg.Add(1)
	go ix.run(ix.ctx)
}

func (ix *Indexer) Pause() {
	ix.gate.Close()
}

func (ix *Indexer) Resume() {
	ix.gate.Open()
}

func (ix *Indexer) Paused() bool {
	return !ix.gate.IsOpen()
}

func (ix *Indexer) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.stack)
}

// Pending lists queued item ids in the order they will be processed.
func (ix *Indexer) Pending() []int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ids := make([]int64, 0, len(ix.stack))
	for i := len(ix.stack) - 1; i >= 0; i-- {
		ids = append(ids, ix.stack[i].ID)
	}
	return ids
}

// Clear drops every pending item. The item in flight is not affected.
func (ix *Indexer) Clear() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := len(ix.stack)
	for _, item := range ix.stack {
		delete(ix.tracked, item.ID)
	}
	ix.stack = nil
	return n
}

func (ix *Indexer) Status() Status {
	ix.mu.Lock()
	queued, computing := len(ix.stack), ix.computing
	ix.mu.Unlock()
	return Status{
		Queued:    queued,
		Computing: computing,
		Paused:    ix.Paused(),
		Indexed:   ix.indexed.Load(),
		Empty:     ix.empty.Load(),
		Dropped:   ix.dropped.Load(),
	}
}

// WaitIdle blocks until the current drain ends. A paused indexer with pending
// items does not become idle.
func (ix *Indexer) WaitIdle(ctx context.Context) error {
	for {
		ix.mu.Lock()
		if !ix.computing {
			ix.mu.Unlock()
			return nil
		}
		idle := ix.idle
		ix.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (ix *Indexer) run(ctx context.Context) {
	defer ix.wg.Done()
	for {
		if err := ix.gate.Wait(ctx); err != nil {
			ix.mu.Lock()
			ix.computing = false
			close(ix.idle)
			ix.mu.Unlock()
			return
		}
		item, ok := ix.pop()
		if !ok {
			return
		}
		ix.process(ctx, item)
		ix.mu.Lock()
		delete(ix.tracked, item.ID)
		ix.mu.Unlock()
	}
}

// pop takes the most recent item. When the queue is empty it ends the drain.
func (ix *Indexer) pop() (model.Item, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(ix.stack) == 0 {
		ix.computing = false
		close(ix.idle)
		return model.Item{}, false
	}
	last := len(ix.stack) - 1
	item := ix.stack[last]
	ix.stack[last] = model.Item{}
	ix.stack = ix.stack[:last]
	return item, true
}

func (ix *Indexer) process(ctx context.Context, item model.Item) {
	logger := logutil.GetLogger(ctx).With(zap.Int64("item_id", item.ID))
	vector, err := ix.embed(ctx, item)
	if err != nil {
		if ai.IsClassified(err) {
			logger.Warn("item cannot be embedded, storing empty embedding", zap.Error(err))
			if !ix.persist(ctx, logger, &model.Embedding{ItemID: item.ID, Version: ix.opts.Version}) {
				ix.dropped.Add(1)
				return
			}
			ix.empty.Add(1)
			return
		}
		logger.Error("compute embedding failed", zap.Error(err))
		ix.dropped.Add(1)
		return
	}
	if len(vector) != ix.opts.Dimension {
		logger.Error("unexpected embedding dimension", zap.Int("got", len(vector)), zap.Int("want", ix.opts.Dimension))
		ix.dropped.Add(1)
		return
	}
	emb := &model.Embedding{ItemID: item.ID, Vector: vector, Version: ix.opts.Version}
	if !ix.persist(ctx, logger, emb) {
		ix.dropped.Add(1)
		return
	}
	ix.indexed.Add(1)
	logger.Debug("item indexed")
}

func (ix *Indexer) embed(ctx context.Context, item model.Item) ([]float32, error) {
	path, err := ix.inputs.MLInputPath(ctx, item)
	if err != nil {
		return nil, err
	}
	return ix.encoder.EmbedImage(ctx, path)
}

func (ix *Indexer) persist(ctx context.Context, logger *zap.Logger, emb *model.Embedding) bool {
	if err := ix.store.Put(ctx, emb); err != nil {
		logger.Error("store embedding failed", zap.Error(err))
		return false
	}
	return true
}
