package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/semindex/internal/model"
	appErr "github.com/xxxsen/semindex/internal/pkg/errors"
	"github.com/xxxsen/semindex/internal/pkg/dbutil"
)

const (
	embeddingTable = "embeddings"
	idChunkSize    = 500
)

var embeddingFields = []string{"item_id", "vector", "version", "mtime"}

type EmbeddingRepo struct {
	db     *sql.DB
	driver string
}

func NewEmbeddingRepo(db *sql.DB, driver string) *EmbeddingRepo {
	return &EmbeddingRepo{db: db, driver: driver}
}

// Upsert writes emb. Rows written with dirty set are picked up by the next
// remote push.
func (r *EmbeddingRepo) Upsert(ctx context.Context, emb *model.Embedding, dirty bool) error {
	const query = `
		INSERT INTO embeddings (item_id, vector, version, dirty, mtime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET
			vector = excluded.vector,
			version = excluded.version,
			dirty = excluded.dirty,
			mtime = excluded.mtime
	`
	if emb.Mtime == 0 {
		emb.Mtime = time.Now().UnixMilli()
	}
	var vec interface{}
	if !emb.IsEmpty() {
		vec = pgvector.NewVector(emb.Vector)
	}
	_, err := r.db.ExecContext(ctx, dbutil.Finalize(r.driver, query),
		emb.ItemID, vec, emb.Version, dbutil.BoolInt(dirty), emb.Mtime)
	return err
}

func (r *EmbeddingRepo) Get(ctx context.Context, itemID int64) (*model.Embedding, error) {
	where := map[string]interface{}{"item_id": itemID}
	sqlStr, args, err := builder.BuildSelect(embeddingTable, where, embeddingFields)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, dbutil.Finalize(r.driver, sqlStr), args...)
	item, err := scanEmbedding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *EmbeddingRepo) ListAll(ctx context.Context) ([]model.Embedding, error) {
	sqlStr, args, err := builder.BuildSelect(embeddingTable, nil, embeddingFields)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, sqlStr, args)
}

func (r *EmbeddingRepo) ListDirty(ctx context.Context, limit int) ([]model.Embedding, error) {
	const query = `
		SELECT item_id, vector, version, mtime
		FROM embeddings
		WHERE dirty = 1
		ORDER BY item_id ASC
		LIMIT ?
	`
	return r.list(ctx, query, []interface{}{limit})
}

// MarkClean clears the dirty flag unless the row changed after it was read.
func (r *EmbeddingRepo) MarkClean(ctx context.Context, itemID, mtime int64) error {
	const query = `UPDATE embeddings SET dirty = 0 WHERE item_id = ? AND mtime = ?`
	_, err := r.db.ExecContext(ctx, dbutil.Finalize(r.driver, query), itemID, mtime)
	return err
}

func (r *EmbeddingRepo) ListIndexedVersions(ctx context.Context) (map[int64]int, error) {
	sqlStr, args, err := builder.BuildSelect(embeddingTable, nil, []string{"item_id", "version"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, dbutil.Finalize(r.driver, sqlStr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[int64]int)
	for rows.Next() {
		var id int64
		var version int
		if err := rows.Scan(&id, &version); err != nil {
			return nil, err
		}
		result[id] = version
	}
	return result, rows.Err()
}

func (r *EmbeddingRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += idChunkSize {
		end := min(start+idChunkSize, len(ids))
		where := map[string]interface{}{"item_id in": dbutil.Int64Args(ids[start:end])}
		sqlStr, args, err := builder.BuildDelete(embeddingTable, where)
		if err != nil {
			return total, err
		}
		res, err := r.db.ExecContext(ctx, dbutil.Finalize(r.driver, sqlStr), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *EmbeddingRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_state`)
	return err
}

func (r *EmbeddingRepo) GetSyncState(ctx context.Context, name string) (int64, error) {
	const query = `SELECT value FROM sync_state WHERE name = ?`
	var value int64
	err := r.db.QueryRowContext(ctx, dbutil.Finalize(r.driver, query), name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return value, err
}

func (r *EmbeddingRepo) SetSyncState(ctx context.Context, name string, value int64) error {
	const query = `
		INSERT INTO sync_state (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`
	_, err := r.db.ExecContext(ctx, dbutil.Finalize(r.driver, query), name, value)
	return err
}

func (r *EmbeddingRepo) list(ctx context.Context, sqlStr string, args []interface{}) ([]model.Embedding, error) {
	rows, err := r.db.QueryContext(ctx, dbutil.Finalize(r.driver, sqlStr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.Embedding
	for rows.Next() {
		item, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmbedding(row rowScanner) (*model.Embedding, error) {
	var item model.Embedding
	var raw sql.NullString
	if err := row.Scan(&item.ItemID, &raw, &item.Version, &item.Mtime); err != nil {
		return nil, err
	}
	if raw.Valid && raw.String != "" {
		var vec pgvector.Vector
		if err := vec.Scan([]byte(raw.String)); err != nil {
			return nil, err
		}
		item.Vector = vec.Slice()
	}
	return &item, nil
}
