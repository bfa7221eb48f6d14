package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/semindex/internal/event"
	"github.com/xxxsen/semindex/internal/model"
	appErr "github.com/xxxsen/semindex/internal/pkg/errors"
	"github.com/xxxsen/semindex/internal/repo"
)

type testEnv struct {
	svc         *SemanticService
	bus         *event.Bus
	enc         *fakeEncoder
	files       *repo.FileRepo
	collections *repo.CollectionRepo
	embeddings  *repo.EmbeddingRepo
}

func newTestEnv(t *testing.T, r *memRemote, settings model.Settings, enc *fakeEncoder) *testEnv {
	t.Helper()
	conn := openTestDB(t)
	env := &testEnv{
		bus:         event.NewBus(),
		enc:         enc,
		files:       repo.NewFileRepo(conn, "sqlite"),
		collections: repo.NewCollectionRepo(conn, "sqlite"),
		embeddings:  repo.NewEmbeddingRepo(conn, "sqlite"),
	}
	store := NewEmbeddingStore(env.embeddings, nil, testDim)
	if r != nil {
		store = NewEmbeddingStore(env.embeddings, r, testDim)
	}
	env.svc = NewSemanticService(Deps{
		Bus:            env.bus,
		Encoder:        enc,
		Store:          store,
		Files:          env.files,
		Collections:    env.collections,
		Inputs:         fakeResolver{},
		Settings:       settings,
		Dimension:      testDim,
		Version:        1,
		MinSimilarity:  0.2,
		ReloadDebounce: 10 * time.Millisecond,
		QueryCacheSize: 4,
	})
	return env
}

func (e *testEnv) saveItems(t *testing.T, items ...model.Item) {
	t.Helper()
	for i := range items {
		require.NoError(t, e.files.Save(context.Background(), &items[i]))
	}
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.svc.Start(context.Background()))
	t.Cleanup(e.svc.Stop)
}

var enabled = model.Settings{SemanticSearchEnabled: true, EncoderEnabled: true}

func TestServiceBackfillsAfterEncoderInit(t *testing.T) {
	env := newTestEnv(t, nil, enabled, newFakeEncoder())
	env.saveItems(t,
		model.Item{ID: 1, Title: "cat", FileKey: "1.jpg", Uploaded: true},
		model.Item{ID: 2, Title: "broken", FileKey: "bad", Uploaded: true},
		model.Item{ID: 3, Title: "pending", FileKey: "3.jpg"},
	)
	var cacheUpdates atomic.Int32
	env.bus.Subscribe(event.TopicCacheUpdated, func(ctx context.Context, ev event.Event) {
		cacheUpdates.Add(1)
	})
	env.start(t)

	require.Eventually(t, func() bool {
		versions, err := env.embeddings.ListIndexedVersions(context.Background())
		return err == nil && len(versions) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return env.svc.Status().Cached == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NotZero(t, cacheUpdates.Load())

	empty, err := env.embeddings.Get(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, empty.IsEmpty())

	query, items, err := env.svc.Search(context.Background(), "a cat")
	require.NoError(t, err)
	require.Equal(t, "a cat", query)
	require.Len(t, items, 1)
	require.Equal(t, int64(1), items[0].ID)

	ids, err := env.svc.GetMatchingFileIDs(context.Background(), "a cat")
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids)
}

func TestServiceUploadedEventIndexesItem(t *testing.T) {
	env := newTestEnv(t, nil, enabled, newFakeEncoder())
	env.start(t)
	require.Eventually(t, func() bool {
		select {
		case <-env.enc.Ready():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.ErrorIs(t, env.svc.NotifyUploaded(ctx, 7), appErr.ErrNotFound)

	env.saveItems(t, model.Item{ID: 7, FileKey: "7.jpg", Uploaded: true})
	require.NoError(t, env.svc.NotifyUploaded(ctx, 7))
	require.Eventually(t, func() bool {
		return env.svc.Status().Cached == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceDisabledSettings(t *testing.T) {
	env := newTestEnv(t, nil, model.Settings{}, newFakeEncoder())
	env.saveItems(t, model.Item{ID: 1, FileKey: "1.jpg", Uploaded: true})
	env.start(t)

	ctx := context.Background()
	_, _, err := env.svc.Search(ctx, "cat")
	require.ErrorIs(t, err, appErr.ErrUnavailable)
	_, err = env.svc.GetMatchingFileIDs(ctx, "cat")
	require.ErrorIs(t, err, appErr.ErrUnavailable)

	n, err := env.svc.Backfill(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.True(t, env.svc.Status().Paused)

	env.svc.UpdateSettings(ctx, enabled)
	require.Eventually(t, func() bool {
		return env.svc.Status().Cached == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, env.svc.Status().Paused)

	env.svc.UpdateSettings(ctx, model.Settings{SemanticSearchEnabled: true})
	st := env.svc.Status()
	require.True(t, st.Paused)
	require.Zero(t, st.Queued)
}

func TestServiceIndexingControl(t *testing.T) {
	env := newTestEnv(t, nil, enabled, newFakeEncoder())
	env.start(t)
	ctx := context.Background()

	env.svc.SetIndexing(ctx, false)
	require.True(t, env.svc.Status().Paused)
	env.svc.SetIndexing(ctx, true)
	require.False(t, env.svc.Status().Paused)
}

func TestServiceSettingsKeepControlPause(t *testing.T) {
	env := newTestEnv(t, nil, enabled, newFakeEncoder())
	env.start(t)
	ctx := context.Background()

	env.svc.SetIndexing(ctx, false)
	env.svc.UpdateSettings(ctx, model.Settings{})
	env.svc.UpdateSettings(ctx, enabled)
	require.True(t, env.svc.Status().Paused)

	// control on while settings forbid indexing keeps the gate closed
	env.svc.UpdateSettings(ctx, model.Settings{})
	env.svc.SetIndexing(ctx, true)
	require.True(t, env.svc.Status().Paused)

	env.svc.UpdateSettings(ctx, enabled)
	require.False(t, env.svc.Status().Paused)
}

func TestServiceEncoderInitFailureBlocksBackfill(t *testing.T) {
	enc := newFakeEncoder()
	enc.initErr = errors.New("model missing")
	env := newTestEnv(t, nil, enabled, enc)
	env.saveItems(t, model.Item{ID: 1, FileKey: "1.jpg", Uploaded: true})
	env.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.svc.Backfill(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, env.svc.Status().Cached)
}

func TestServiceSyncWithoutReadyEncoder(t *testing.T) {
	r := newMemRemote()
	r.put(model.Embedding{ItemID: 5, Vector: []float32{1, 0, 0}, Version: 1}, time.Now())
	enc := newFakeEncoder()
	enc.initErr = errors.New("model missing")
	env := newTestEnv(t, r, enabled, enc)
	env.saveItems(t, model.Item{ID: 5, FileKey: "5.jpg", Uploaded: true})
	env.start(t)

	ctx := context.Background()
	require.NoError(t, env.embeddings.Upsert(ctx, &model.Embedding{ItemID: 8, Vector: []float32{0, 1, 0}, Version: 1}, true))

	syncCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	require.NoError(t, env.svc.SyncEmbeddings(syncCtx))
	require.Equal(t, []int64{5, 8}, r.ids())

	// a second round is not held up by the first one
	require.NoError(t, env.svc.SyncEmbeddings(syncCtx))
}

func TestServiceSyncPullsRemoteEmbeddings(t *testing.T) {
	r := newMemRemote()
	r.put(model.Embedding{ItemID: 5, Vector: []float32{1, 0, 0}, Version: 1}, time.Now())
	env := newTestEnv(t, r, enabled, newFakeEncoder())
	env.saveItems(t,
		model.Item{ID: 5, FileKey: "5.jpg", Uploaded: true},
		model.Item{ID: 6, FileKey: "6.jpg", Uploaded: true},
	)
	env.start(t)

	ctx := context.Background()
	require.NoError(t, env.svc.SyncEmbeddings(ctx))
	require.NoError(t, env.svc.Drain(ctx))
	require.Eventually(t, func() bool {
		return env.svc.Status().Cached == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.svc.SyncEmbeddings(ctx))
	require.Equal(t, []int64{5, 6}, r.ids())
}

func TestServiceSearchDropsStaleEmbeddings(t *testing.T) {
	env := newTestEnv(t, nil, enabled, newFakeEncoder())
	ctx := context.Background()
	require.NoError(t, env.embeddings.Upsert(ctx, &model.Embedding{ItemID: 9, Vector: []float32{1, 0, 0}, Version: 1}, false))
	env.start(t)
	require.Equal(t, 1, env.svc.Status().Cached)

	_, items, err := env.svc.Search(ctx, "anything")
	require.NoError(t, err)
	require.Empty(t, items)
	require.NoError(t, env.svc.FlushStale(ctx))

	_, err = env.embeddings.Get(ctx, 9)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Eventually(t, func() bool {
		return env.svc.Status().Cached == 0
	}, 2*time.Second, 10*time.Millisecond)
}
