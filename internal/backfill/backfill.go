// Package backfill finds eligible items without a current embedding and
// queues them for indexing.
package backfill

import (
	"context"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/ai"
	"github.com/xxxsen/semindex/internal/model"
)

type Files interface {
	ListEligibleIDs(ctx context.Context) (map[int64]struct{}, error)
	ListUploadedByIDs(ctx context.Context, ids []int64) ([]model.Item, error)
}

type IndexedVersions interface {
	GetIndexedIDsWithVersion(ctx context.Context) (map[int64]int, error)
}

type Queue interface {
	EnqueueMany(items []model.Item) int
}

type Reconciler struct {
	files    Files
	indexed  IndexedVersions
	queue    Queue
	encoder  ai.IEncoder
	version  int
	settings func() model.Settings
}

func NewReconciler(files Files, indexed IndexedVersions, queue Queue, encoder ai.IEncoder, version int, settings func() model.Settings) *Reconciler {
	return &Reconciler{
		files:    files,
		indexed:  indexed,
		queue:    queue,
		encoder:  encoder,
		version:  version,
		settings: settings,
	}
}

// ComputeGap returns eligible item ids lacking an embedding produced by the
// current encoder version. Empty embeddings count as indexed.
func (r *Reconciler) ComputeGap(ctx context.Context) (map[int64]struct{}, error) {
	eligible, err := r.files.ListEligibleIDs(ctx)
	if err != nil {
		return nil, err
	}
	indexed, err := r.indexed.GetIndexedIDsWithVersion(ctx)
	if err != nil {
		return nil, err
	}
	gap := make(map[int64]struct{}, len(eligible))
	for id := range eligible {
		if version, ok := indexed[id]; ok && version >= r.version {
			continue
		}
		gap[id] = struct{}{}
	}
	return gap, nil
}

// Backfill queues every item in the current gap and returns how many were
// added. It waits for the encoder to become ready first.
func (r *Reconciler) Backfill(ctx context.Context) (int, error) {
	logger := logutil.GetLogger(ctx)
	if r.settings != nil && !r.settings().IndexingAllowed() {
		logger.Debug("backfill skipped: semantic search disabled")
		return 0, nil
	}
	if err := ai.WaitReady(ctx, r.encoder); err != nil {
		return 0, err
	}
	gap, err := r.ComputeGap(ctx)
	if err != nil {
		logger.Error("compute indexing gap failed", zap.Error(err))
		return 0, err
	}
	if len(gap) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(gap))
	for id := range gap {
		ids = append(ids, id)
	}
	// oldest first so the newest items end on top of the stack
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	items, err := r.files.ListUploadedByIDs(ctx, ids)
	if err != nil {
		logger.Error("resolve gap items failed", zap.Error(err))
		return 0, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	added := r.queue.EnqueueMany(items)
	logger.Info("backfill queued items", zap.Int("gap", len(gap)), zap.Int("count", added))
	return added, nil
}
