// Package remote mirrors embeddings to an object store shared between devices.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/semindex/internal/config"
	"github.com/xxxsen/semindex/internal/model"
)

type Object struct {
	Key      string
	ItemID   int64
	Modified time.Time
}

type Remote interface {
	// List returns the embedding objects modified strictly after since.
	List(ctx context.Context, since time.Time) ([]Object, error)
	Fetch(ctx context.Context, key string) (*model.Embedding, error)
	Upload(ctx context.Context, emb *model.Embedding) error
	Delete(ctx context.Context, itemIDs []int64) error
}

type Factory func(args interface{}) (Remote, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// New builds the configured remote. An empty or "none" type disables remote
// sync and returns a nil Remote.
func New(cfg config.RemoteConfig) (Remote, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" || key == "none" {
		return nil, nil
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported remote type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func objectKey(prefix string, itemID int64) string {
	return path.Join(prefix, "embeddings", strconv.FormatInt(itemID, 10)+".json")
}

func listPrefix(prefix string) string {
	return path.Join(prefix, "embeddings") + "/"
}

func parseObjectKey(key string) (int64, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, ".json") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(base, ".json"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("remote config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode remote config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode remote config: %w", err)
	}
	return nil
}
