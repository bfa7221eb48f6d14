package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"

	"github.com/xxxsen/semindex/internal/ai"
)

const DefaultQueryCacheSize = 20

// WrapLruCacheToEncoder memoizes text embeddings of the most recent queries.
// Image embeddings pass through untouched.
func WrapLruCacheToEncoder(e ai.IEncoder, size int) ai.IEncoder {
	if e == nil {
		return e
	}
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return e
	}
	return &lruEncoder{IEncoder: e, cache: cache}
}

type lruEncoder struct {
	ai.IEncoder
	cache *lru.Cache[string, []float32]
}

func (l *lruEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	cacheKey := buildCacheKey(l.ModelName(), text)
	if cached, ok := l.cache.Get(cacheKey); ok {
		logutil.GetLogger(ctx).Debug("query embedding cache hit (lru)")
		return cloneEmbedding(cached), nil
	}
	res, err := l.IEncoder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(cacheKey, cloneEmbedding(res))
	return res, nil
}

func buildCacheKey(modelName, text string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	return "query:" + modelName + ":" + hex.EncodeToString(hash[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
