package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/semindex/internal/model"
	"github.com/xxxsen/semindex/internal/pkg/dbutil"
)

type CollectionRepo struct {
	db     *sql.DB
	driver string
}

func NewCollectionRepo(db *sql.DB, driver string) *CollectionRepo {
	return &CollectionRepo{db: db, driver: driver}
}

func (r *CollectionRepo) Save(ctx context.Context, c *model.Collection) error {
	const query = `
		INSERT INTO collections (id, owner_id, name, hidden, mtime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			hidden = excluded.hidden,
			mtime = excluded.mtime
	`
	_, err := r.db.ExecContext(ctx, dbutil.Finalize(r.driver, query),
		c.ID, c.OwnerID, c.Name, dbutil.BoolInt(c.Hidden), c.Mtime)
	return err
}

func (r *CollectionRepo) ListHiddenIDs(ctx context.Context) (map[int64]struct{}, error) {
	sqlStr, args, err := builder.BuildSelect("collections", map[string]interface{}{"hidden": 1}, []string{"id"})
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
