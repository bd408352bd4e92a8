package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mtutor/internal/pkg/errors"
)

var documentColumns = []string{"id", "title", "type", "description", "file_key", "text_key", "link", "file_name", "mime_type", "file_size", "ctime", "mtime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":          doc.ID,
		"title":       doc.Title,
		"type":        string(doc.Type),
		"description": doc.Description,
		"file_key":    doc.FileKey,
		"text_key":    doc.TextKey,
		"link":        doc.Link,
		"file_name":   doc.FileName,
		"mime_type":   doc.MimeType,
		"file_size":   doc.FileSize,
		"ctime":       doc.Ctime,
		"mtime":       doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	docs, err := r.list(ctx, map[string]interface{}{"id": id, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

// ListByIDs skips ids that do not exist.
func (r *DocumentRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		in = append(in, id)
	}
	return r.list(ctx, map[string]interface{}{"id in": in})
}

func (r *DocumentRepo) ListByType(ctx context.Context, docType model.DocumentType) ([]*model.Document, error) {
	return r.list(ctx, map[string]interface{}{
		"type":     string(docType),
		"_orderby": "ctime asc, id asc",
	})
}

func (r *DocumentRepo) List(ctx context.Context, offset, limit uint) ([]*model.Document, error) {
	return r.list(ctx, map[string]interface{}{
		"_orderby": "ctime desc, id asc",
		"_limit":   []uint{offset, limit},
	})
}

// Delete removes the document; its fragments go with it through the foreign key cascade.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": id})
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

func (r *DocumentRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		var (
			doc     model.Document
			docType string
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &docType, &doc.Description, &doc.FileKey, &doc.TextKey, &doc.Link, &doc.FileName, &doc.MimeType, &doc.FileSize, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		doc.Type = model.DocumentType(docType)
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
