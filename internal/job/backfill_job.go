package job

import (
	"context"

	"github.com/xxxsen/semindex/internal/service"
)

type BackfillJob struct {
	semantic *service.SemanticService
}

func NewBackfillJob(semantic *service.SemanticService) *BackfillJob {
	return &BackfillJob{semantic: semantic}
}

func (j *BackfillJob) Name() string {
	return "backfill"
}

func (j *BackfillJob) Run(ctx context.Context) error {
	if j.semantic == nil {
		return nil
	}
	_, err := j.semantic.Backfill(ctx)
	return err
}
