package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/semindex/internal/ai"
	"github.com/xxxsen/semindex/internal/model"
)

const thumbDir = "thumbs"

type localConfig struct {
	Dir string `json:"dir"`
}

// localStore keeps originals under dir and derived thumbnails under
// dir/thumbs. The thumbnail is preferred as encoder input.
type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Resolver, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	return &localStore{dir: config.Dir}, nil
}

func (s *localStore) MLInputPath(ctx context.Context, item model.Item) (string, error) {
	_ = ctx
	key := item.FileKey
	if key == "" || strings.Contains(key, "/") || strings.Contains(key, "\\") || key == ".." {
		return "", fmt.Errorf("%w: invalid file key %q", ai.ErrInvalidFormat, key)
	}
	for _, candidate := range []string{
		filepath.Join(s.dir, thumbDir, key),
		filepath.Join(s.dir, key),
	} {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no input for item %d", ai.ErrPlatform, item.ID)
}
