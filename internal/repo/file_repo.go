package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/semindex/internal/model"
	"github.com/xxxsen/semindex/internal/pkg/dbutil"
)

const fileTable = "files"

var fileFields = []string{"id", "collection_id", "owner_id", "title", "file_key", "uploaded", "mtime"}

type FileRepo struct {
	db     *sql.DB
	driver string
}

func NewFileRepo(db *sql.DB, driver string) *FileRepo {
	return &FileRepo{db: db, driver: driver}
}

func (r *FileRepo) Save(ctx context.Context, item *model.Item) error {
	const query = `
		INSERT INTO files (id, collection_id, owner_id, title, file_key, uploaded, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			collection_id = excluded.collection_id,
			owner_id = excluded.owner_id,
			title = excluded.title,
			file_key = excluded.file_key,
			uploaded = excluded.uploaded,
			mtime = excluded.mtime
	`
	_, err := r.db.ExecContext(ctx, dbutil.Finalize(r.driver, query),
		item.ID, item.CollectionID, item.OwnerID, item.Title, item.FileKey, dbutil.BoolInt(item.Uploaded), item.Mtime)
	return err
}

func (r *FileRepo) Delete(ctx context.Context, id int64) error {
	sqlStr, args, err := builder.BuildDelete(fileTable, map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, dbutil.Finalize(r.driver, sqlStr), args...)
	return err
}

// ResolveIDs returns the live items among ids keyed by id. Missing ids are
// simply absent from the result.
func (r *FileRepo) ResolveIDs(ctx context.Context, ids []int64) (map[int64]model.Item, error) {
	items, err := r.listByIDs(ctx, ids, nil)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]model.Item, len(items))
	for _, item := range items {
		result[item.ID] = item
	}
	return result, nil
}

func (r *FileRepo) ListUploadedByIDs(ctx context.Context, ids []int64) ([]model.Item, error) {
	return r.listByIDs(ctx, ids, map[string]interface{}{"uploaded": 1})
}

func (r *FileRepo) ListEligibleIDs(ctx context.Context) (map[int64]struct{}, error) {
	sqlStr, args, err := builder.BuildSelect(fileTable, map[string]interface{}{"uploaded": 1}, []string{"id"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, dbutil.Finalize(r.driver, sqlStr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = struct{}{}
	}
	return result, rows.Err()
}

func (r *FileRepo) listByIDs(ctx context.Context, ids []int64, extra map[string]interface{}) ([]model.Item, error) {
	var items []model.Item
	for start := 0; start < len(ids); start += idChunkSize {
		end := min(start+idChunkSize, len(ids))
		where := map[string]interface{}{"id in": dbutil.Int64Args(ids[start:end])}
		for k, v := range extra {
			where[k] = v
		}
		sqlStr, args, err := builder.BuildSelect(fileTable, where, fileFields)
		if err != nil {
			return nil, err
		}
		rows, err := r.db.QueryContext(ctx, dbutil.Finalize(r.driver, sqlStr), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var item model.Item
			var uploaded int
			if err := rows.Scan(&item.ID, &item.CollectionID, &item.OwnerID, &item.Title, &item.FileKey, &uploaded, &item.Mtime); err != nil {
				rows.Close()
				return nil, err
			}
			item.Uploaded = uploaded != 0
			items = append(items, item)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}
