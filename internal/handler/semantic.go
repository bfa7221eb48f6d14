package handler

import (
	"context"

	"github.com/xxxsen/semindex/internal/model"
	"github.com/xxxsen/semindex/internal/service"
)

// Semantic is the part of service.SemanticService served over HTTP.
type Semantic interface {
	Search(ctx context.Context, query string) (string, []model.Item, error)
	GetMatchingFileIDs(ctx context.Context, query string) ([]int64, error)
	SetIndexing(ctx context.Context, on bool)
	Status() service.IndexStatus
	Backfill(ctx context.Context) (int, error)
	NotifyUploaded(ctx context.Context, id int64) error
	NotifySync(ctx context.Context)
	Settings() model.Settings
	UpdateSettings(ctx context.Context, settings model.Settings)
}

var _ Semantic = (*service.SemanticService)(nil)
