package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/semindex/internal/config"
	"github.com/xxxsen/semindex/internal/db"
	"github.com/xxxsen/semindex/internal/model"
	appErr "github.com/xxxsen/semindex/internal/pkg/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn, "sqlite"))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEmbeddingRepoUpsertAndList(t *testing.T) {
	ctx := context.Background()
	embeddings := NewEmbeddingRepo(openTestDB(t), "sqlite")

	require.NoError(t, embeddings.Upsert(ctx, &model.Embedding{ItemID: 1, Vector: []float32{0.5, -1, 2}, Version: 1}, true))
	require.NoError(t, embeddings.Upsert(ctx, &model.Embedding{ItemID: 2, Version: 1}, true))

	got, err := embeddings.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, -1, 2}, got.Vector)
	require.Equal(t, 1, got.Version)
	require.NotZero(t, got.Mtime)

	empty, err := embeddings.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, empty.IsEmpty())

	_, err = embeddings.Get(ctx, 3)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, embeddings.Upsert(ctx, &model.Embedding{ItemID: 1, Vector: []float32{1, 1, 1}, Version: 2}, false))
	all, err := embeddings.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	versions, err := embeddings.ListIndexedVersions(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{1: 2, 2: 1}, versions)
}

func TestEmbeddingRepoDirtyTracking(t *testing.T) {
	ctx := context.Background()
	embeddings := NewEmbeddingRepo(openTestDB(t), "sqlite")

	require.NoError(t, embeddings.Upsert(ctx, &model.Embedding{ItemID: 1, Vector: []float32{1}, Version: 1, Mtime: 100}, true))
	require.NoError(t, embeddings.Upsert(ctx, &model.Embedding{ItemID: 2, Vector: []float32{2}, Version: 1, Mtime: 100}, false))

	dirty, err := embeddings.ListDirty(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	require.Equal(t, int64(1), dirty[0].ItemID)

	// stale mtime leaves the row dirty
	require.NoError(t, embeddings.MarkClean(ctx, 1, 99))
	dirty, err = embeddings.ListDirty(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dirty, 1)

	require.NoError(t, embeddings.MarkClean(ctx, 1, 100))
	dirty, err = embeddings.ListDirty(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, dirty)
}

func TestEmbeddingRepoDeleteAndSyncState(t *testing.T) {
	ctx := context.Background()
	embeddings := NewEmbeddingRepo(openTestDB(t), "sqlite")
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, embeddings.Upsert(ctx, &model.Embedding{ItemID: i, Vector: []float32{float32(i)}, Version: 1}, false))
	}
	n, err := embeddings.DeleteByIDs(ctx, []int64{1, 3, 42})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	value, err := embeddings.GetSyncState(ctx, "pull")
	require.NoError(t, err)
	require.Zero(t, value)
	require.NoError(t, embeddings.SetSyncState(ctx, "pull", 1234))
	require.NoError(t, embeddings.SetSyncState(ctx, "pull", 5678))
	value, err = embeddings.GetSyncState(ctx, "pull")
	require.NoError(t, err)
	require.Equal(t, int64(5678), value)

	require.NoError(t, embeddings.DeleteAll(ctx))
	all, err := embeddings.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
	value, err = embeddings.GetSyncState(ctx, "pull")
	require.NoError(t, err)
	require.Zero(t, value)
}

func TestFileAndCollectionRepo(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	files := NewFileRepo(conn, "sqlite")
	collections := NewCollectionRepo(conn, "sqlite")

	require.NoError(t, collections.Save(ctx, &model.Collection{ID: 10, Name: "visible"}))
	require.NoError(t, collections.Save(ctx, &model.Collection{ID: 11, Name: "hidden", Hidden: true}))
	require.NoError(t, files.Save(ctx, &model.Item{ID: 1, CollectionID: 10, FileKey: "a.jpg", Uploaded: true}))
	require.NoError(t, files.Save(ctx, &model.Item{ID: 2, CollectionID: 11, FileKey: "b.jpg", Uploaded: true}))
	require.NoError(t, files.Save(ctx, &model.Item{ID: 3, CollectionID: 10, FileKey: "c.jpg"}))

	hidden, err := collections.ListHiddenIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]struct{}{11: {}}, hidden)

	eligible, err := files.ListEligibleIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]struct{}{1: {}, 2: {}}, eligible)

	resolved, err := files.ResolveIDs(ctx, []int64{1, 3, 99})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	require.Equal(t, "a.jpg", resolved[1].FileKey)
	require.False(t, resolved[3].Uploaded)

	uploaded, err := files.ListUploadedByIDs(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, uploaded, 2)

	require.NoError(t, files.Delete(ctx, 1))
	resolved, err = files.ResolveIDs(ctx, []int64{1})
	require.NoError(t, err)
	require.Empty(t, resolved)

	none, err := files.ResolveIDs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, none)
}
