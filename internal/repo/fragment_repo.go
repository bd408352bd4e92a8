package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mtutor/internal/pkg/errors"
)

var fragmentColumns = []string{"id", "document_id", "ordinal", "content", "embedding", "space", "dimension", "metadata", "ctime"}

type FragmentRepo struct {
	db *sql.DB
}

func NewFragmentRepo(db *sql.DB) *FragmentRepo {
	return &FragmentRepo{db: db}
}

// ReplaceByDocument swaps the whole fragment set of a document in one transaction, so
// readers either see the old set or the new one.
func (r *FragmentRepo) ReplaceByDocument(ctx context.Context, documentID string, frags []*model.Fragment) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	// Row lock on the document serializes concurrent replacements of the same set.
	var locked string
	if err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("document %s: %w", documentID, appErr.ErrNotFound)
		}
		return err
	}
	sqlStr, args, err := builder.BuildDelete("fragments", map[string]interface{}{"document_id": documentID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	if len(frags) > 0 {
		data := make([]map[string]interface{}, 0, len(frags))
		for _, frag := range frags {
			if frag.DocumentID != documentID {
				return fmt.Errorf("fragment %s belongs to document %s, not %s", frag.ID, frag.DocumentID, documentID)
			}
			meta, merr := json.Marshal(frag.Metadata)
			if merr != nil {
				return merr
			}
			data = append(data, map[string]interface{}{
				"id":          frag.ID,
				"document_id": frag.DocumentID,
				"ordinal":     frag.Ordinal,
				"content":     frag.Content,
				"embedding":   pgvector.NewVector(frag.Embedding),
				"space":       frag.Space,
				"dimension":   frag.Dimension,
				"metadata":    string(meta),
				"ctime":       frag.Ctime,
			})
		}
		sqlStr, args, err = builder.BuildInsert("fragments", data)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
			if dbutil.IsMissingReference(err) {
				return fmt.Errorf("document %s: %w", documentID, appErr.ErrNotFound)
			}
			return err
		}
	}
	return tx.Commit()
}

// ListBySpace returns every fragment embedded in space, in document then ordinal order.
func (r *FragmentRepo) ListBySpace(ctx context.Context, space string) ([]*model.Fragment, error) {
	return r.list(ctx, map[string]interface{}{
		"space":    space,
		"_orderby": "document_id asc, ordinal asc",
	})
}

// ListOutsideSpace returns up to limit fragments that were embedded in any other space.
func (r *FragmentRepo) ListOutsideSpace(ctx context.Context, space string, limit uint) ([]*model.Fragment, error) {
	return r.list(ctx, map[string]interface{}{
		"space !=": space,
		"_orderby": "ctime asc, id asc",
		"_limit":   []uint{0, limit},
	})
}

func (r *FragmentRepo) ListByDocument(ctx context.Context, documentID string) ([]*model.Fragment, error) {
	return r.list(ctx, map[string]interface{}{
		"document_id": documentID,
		"_orderby":    "ordinal asc",
	})
}

// UpdateEmbedding moves one fragment into another space. Content is left untouched.
func (r *FragmentRepo) UpdateEmbedding(ctx context.Context, id string, vec []float32, space string) error {
	sqlStr, args, err := builder.BuildUpdate("fragments", map[string]interface{}{"id": id}, map[string]interface{}{
		"embedding": pgvector.NewVector(vec),
		"space":     space,
		"dimension": len(vec),
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type SpaceCount struct {
	Space string `json:"space"`
	Count int64  `json:"count"`
}

func (r *FragmentRepo) CountBySpace(ctx context.Context) ([]SpaceCount, error) {
	const query = `SELECT space, COUNT(*) FROM fragments GROUP BY space ORDER BY space`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SpaceCount
	for rows.Next() {
		var item SpaceCount
		if err := rows.Scan(&item.Space, &item.Count); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *FragmentRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Fragment, error) {
	sqlStr, args, err := builder.BuildSelect("fragments", where, fragmentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Fragment
	for rows.Next() {
		var (
			frag model.Fragment
			vec  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(&frag.ID, &frag.DocumentID, &frag.Ordinal, &frag.Content, &vec, &frag.Space, &frag.Dimension, &meta, &frag.Ctime); err != nil {
			return nil, err
		}
		frag.Embedding = vec.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &frag.Metadata); err != nil {
				return nil, fmt.Errorf("decode fragment %s metadata: %w", frag.ID, err)
			}
		}
		out = append(out, &frag)
	}
	return out, rows.Err()
}
