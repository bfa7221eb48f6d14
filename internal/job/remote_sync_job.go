package job

import (
	"context"

	"github.com/xxxsen/semindex/internal/service"
)

type RemoteSyncJob struct {
	semantic *service.SemanticService
}

func NewRemoteSyncJob(semantic *service.SemanticService) *RemoteSyncJob {
	return &RemoteSyncJob{semantic: semantic}
}

func (j *RemoteSyncJob) Name() string {
	return "remote_sync"
}

func (j *RemoteSyncJob) Run(ctx context.Context) error {
	if j.semantic == nil {
		return nil
	}
	return j.semantic.SyncEmbeddings(ctx)
}
