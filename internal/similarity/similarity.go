// Package similarity scores embeddings against a query vector.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/semindex/internal/model"
)

const (
	DefaultMinSimilarity = 0.20
	chunkSize            = 2048
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// CosineSimilarity returns the cosine of the angle between a and b. Both
// vectors must have exactly dim elements; a zero vector scores 0.
func CosineSimilarity(a, b []float32, dim int) (float64, error) {
	if len(a) != dim || len(b) != dim {
		return 0, fmt.Errorf("%w: got %d and %d, want %d", ErrDimensionMismatch, len(a), len(b), dim)
	}
	return cosine(a, b), nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankBulk scores every candidate against query and returns those scoring at
// least minSimilarity, best first. Equal scores are ordered by ascending item
// id. A negative minSimilarity selects DefaultMinSimilarity. The query must
// have exactly dim elements; candidates of any other length are skipped.
func RankBulk(ctx context.Context, candidates []model.Embedding, query []float32, dim int, minSimilarity float64) ([]model.QueryResult, error) {
	if dim <= 0 || len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d elements, want %d", ErrDimensionMismatch, len(query), dim)
	}
	if minSimilarity < 0 {
		minSimilarity = DefaultMinSimilarity
	}
	chunks := (len(candidates) + chunkSize - 1) / chunkSize
	parts := make([][]model.QueryResult, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := 0; c < chunks; c++ {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := c * chunkSize
			end := min(start+chunkSize, len(candidates))
			var out []model.QueryResult
			for _, item := range candidates[start:end] {
				if len(item.Vector) != len(query) {
					continue
				}
				score := cosine(item.Vector, query)
				if score >= minSimilarity {
					out = append(out, model.QueryResult{ItemID: item.ItemID, Score: score})
				}
			}
			parts[c] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	results := make([]model.QueryResult, 0, total)
	for _, p := range parts {
		results = append(results, p...)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})
	return results, nil
}
