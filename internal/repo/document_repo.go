package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/coscribe/internal/model"
	"github.com/xxxsen/coscribe/internal/pkg/dbutil"
	appErr "github.com/xxxsen/coscribe/internal/pkg/errors"
)

var documentFields = []string{"id", "ctime", "title", "content", "kind", "owner_id", "mtime", "is_autosave", "version_type"}

// DocumentRepo stores documents as append-only snapshots. Save never
// updates a row; the current version is the row with the largest ctime for
// an id. Concurrent writers to the same id race to append and the latest
// ctime wins, which is acceptable because there is a single active session
// per document.
type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Save appends a new snapshot row. A write whose owner does not exist is
// rejected with ErrOwnerMissing rather than silently dropped; callers decide
// whether to surface or swallow it.
func (r *DocumentRepo) Save(ctx context.Context, doc *model.Document) error {
	ok, err := r.ownerExists(ctx, doc.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		return appErr.ErrOwnerMissing
	}
	data := map[string]interface{}{
		"id":           doc.ID,
		"ctime":        doc.Ctime,
		"title":        doc.Title,
		"content":      doc.Content,
		"kind":         doc.Kind,
		"owner_id":     doc.OwnerID,
		"mtime":        doc.Mtime,
		"is_autosave":  doc.IsAutosave,
		"version_type": doc.VersionType,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil && dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *DocumentRepo) ownerExists(ctx context.Context, ownerID string) (bool, error) {
	if ownerID == "" {
		return false, nil
	}
	sqlStr, args, err := builder.BuildSelect("users", map[string]interface{}{"id": ownerID}, []string{"id"})
	if err != nil {
		return false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	return rows.Next(), rows.Err()
}

// GetLatest returns the current version of a document.
func (r *DocumentRepo) GetLatest(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":       docID,
		"_orderby": "ctime desc",
		"_limit":   []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanDocument(rows)
}

// ListVersions returns every snapshot of a document, newest first.
func (r *DocumentRepo) ListVersions(ctx context.Context, docID string) ([]model.Document, error) {
	where := map[string]interface{}{
		"id":       docID,
		"_orderby": "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ListByOwner returns the latest snapshot of each document the owner has,
// newest first. Raw SQL because the builder cannot express DISTINCT ON;
// limit/offset paginate documents, not version rows.
func (r *DocumentRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset uint) ([]model.Document, error) {
	sqlStr := `
		SELECT id, ctime, title, content, kind, owner_id, mtime, is_autosave, version_type
		FROM (
			SELECT DISTINCT ON (id) id, ctime, title, content, kind, owner_id, mtime, is_autosave, version_type
			FROM documents
			WHERE owner_id = $1
			ORDER BY id, ctime DESC
		) latest
		ORDER BY ctime DESC
	`
	args := []interface{}{ownerID}
	if limit > 0 {
		sqlStr += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Delete removes the whole version family of a document.
func (r *DocumentRepo) Delete(ctx context.Context, ownerID, docID string) error {
	where := map[string]interface{}{
		"id":       docID,
		"owner_id": ownerID,
	}
	sqlStr, args, err := builder.BuildDelete("documents", where)
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

// TrimAutosaves deletes autosave snapshots beyond the newest keep rows.
// Explicit and ai_update snapshots are never trimmed.
func (r *DocumentRepo) TrimAutosaves(ctx context.Context, docID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	sqlStr := `
		DELETE FROM documents
		WHERE id = $1
		  AND is_autosave = TRUE
		  AND ctime NOT IN (
			SELECT ctime
			FROM documents
			WHERE id = $2
			ORDER BY ctime DESC
			LIMIT $3
		  )
	`
	_, err := r.db.ExecContext(ctx, sqlStr, docID, docID, keep)
	return err
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	if err := rows.Scan(&doc.ID, &doc.Ctime, &doc.Title, &doc.Content, &doc.Kind, &doc.OwnerID, &doc.Mtime, &doc.IsAutosave, &doc.VersionType); err != nil {
		return nil, err
	}
	return &doc, nil
}
