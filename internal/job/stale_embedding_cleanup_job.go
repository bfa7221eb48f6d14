package job

import (
	"context"

	"github.com/xxxsen/semindex/internal/service"
)

// StaleEmbeddingCleanupJob retries deletions of embeddings whose items were
// found missing while answering queries.
type StaleEmbeddingCleanupJob struct {
	semantic *service.SemanticService
}

func NewStaleEmbeddingCleanupJob(semantic *service.SemanticService) *StaleEmbeddingCleanupJob {
	return &StaleEmbeddingCleanupJob{semantic: semantic}
}

func (j *StaleEmbeddingCleanupJob) Name() string {
	return "stale_embedding_cleanup"
}

func (j *StaleEmbeddingCleanupJob) Run(ctx context.Context) error {
	if j.semantic == nil {
		return nil
	}
	return j.semantic.FlushStale(ctx)
}
