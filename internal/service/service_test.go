package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/semindex/internal/ai"
	"github.com/xxxsen/semindex/internal/config"
	"github.com/xxxsen/semindex/internal/db"
	"github.com/xxxsen/semindex/internal/model"
	"github.com/xxxsen/semindex/internal/remote"
)

const testDim = 3

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn, "sqlite"))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type memRemote struct {
	mu      sync.Mutex
	objects map[int64]model.Embedding
	times   map[int64]time.Time
	deleted []int64
}

func newMemRemote() *memRemote {
	return &memRemote{objects: map[int64]model.Embedding{}, times: map[int64]time.Time{}}
}

func (m *memRemote) put(emb model.Embedding, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[emb.ItemID] = emb
	m.times[emb.ItemID] = at.Truncate(time.Millisecond)
}

func (m *memRemote) List(ctx context.Context, since time.Time) ([]remote.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []remote.Object
	for id, at := range m.times {
		if at.After(since) {
			out = append(out, remote.Object{Key: fmt.Sprintf("embeddings/%d.json", id), ItemID: id, Modified: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *memRemote) Fetch(ctx context.Context, key string) (*model.Embedding, error) {
	var id int64
	if _, err := fmt.Sscanf(key, "embeddings/%d.json", &id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	emb := m.objects[id]
	return &emb, nil
}

func (m *memRemote) Upload(ctx context.Context, emb *model.Embedding) error {
	m.put(*emb, time.Now())
	return nil
}

func (m *memRemote) Delete(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.objects, id)
		delete(m.times, id)
	}
	m.deleted = append(m.deleted, ids...)
	return nil
}

func (m *memRemote) ids() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type fakeEncoder struct {
	ready   chan struct{}
	initErr error
	once    sync.Once
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{ready: make(chan struct{})}
}

func (f *fakeEncoder) Init(ctx context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.once.Do(func() { close(f.ready) })
	return nil
}

func (f *fakeEncoder) Ready() <-chan struct{} { return f.ready }
func (f *fakeEncoder) ModelName() string      { return "fake" }

func (f *fakeEncoder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if path == "/input/bad" {
		return nil, fmt.Errorf("decode: %w", ai.ErrInvalidFormat)
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakeResolver struct{}

func (fakeResolver) MLInputPath(ctx context.Context, item model.Item) (string, error) {
	if item.FileKey == "bad" {
		return "/input/bad", nil
	}
	return fmt.Sprintf("/input/%d", item.ID), nil
}
