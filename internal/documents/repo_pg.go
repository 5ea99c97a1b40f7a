package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, name, upload_date, uploaded_by, status, district, upazila, union_name, ward, neighborhood, doc_type,
       storage_key, file_name, mime_type, size_bytes, page_count, status_changed_at, next_transition_at`

// CreateBatch inserts all documents in one transaction.
func (r *PGRepo) CreateBatch(ctx context.Context, docs []Document) error {
	const query = `
INSERT INTO documents (
    id, name, upload_date, uploaded_by, status,
    district, upazila, union_name, ward, neighborhood, doc_type,
    storage_key, file_name, mime_type, size_bytes, page_count,
    status_changed_at, next_transition_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, query,
			doc.ID,
			doc.Name,
			doc.UploadDate,
			doc.UploadedBy,
			string(doc.Status),
			doc.Metadata.District,
			doc.Metadata.Upazila,
			doc.Metadata.Union,
			doc.Metadata.Ward,
			doc.Metadata.Neighborhood,
			doc.Metadata.Type,
			nullableString(doc.StorageKey),
			nullableString(doc.FileName),
			nullableString(doc.MimeType),
			doc.SizeBytes,
			doc.PageCount,
			doc.StatusChangedAt,
			nullableTime(doc.NextTransitionAt),
		); err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// List returns every document in upload order.
func (r *PGRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + documentColumns + `
FROM documents
ORDER BY position ASC`
	return r.query(ctx, query)
}

// GetByID returns a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + `
FROM documents
WHERE id = $1
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// ListDue returns documents due at or before now, earliest first.
func (r *PGRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + documentColumns + `
FROM documents
WHERE next_transition_at IS NOT NULL AND next_transition_at <= $1
ORDER BY next_transition_at ASC
LIMIT $2`
	return r.query(ctx, query, now, limit)
}

// AdvanceStatus applies a compare-and-set status change. Concurrent
// schedulers race on the WHERE clause; only one update wins.
func (r *PGRepo) AdvanceStatus(ctx context.Context, adv Advance) (Document, bool, error) {
	query := `UPDATE documents
SET status = $3, status_changed_at = $4, next_transition_at = $5
WHERE id = $1 AND status = $2
RETURNING ` + documentColumns
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query,
		adv.ID,
		string(adv.From),
		string(adv.To),
		adv.At,
		nullableTime(adv.NextAt),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}
	return doc, true, nil
}

func (r *PGRepo) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status string
	var storageKey, fileName, mimeType sql.NullString
	var sizeBytes sql.NullInt64
	var pageCount sql.NullInt32
	var nextAt sql.NullTime
	if err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.UploadDate,
		&doc.UploadedBy,
		&status,
		&doc.Metadata.District,
		&doc.Metadata.Upazila,
		&doc.Metadata.Union,
		&doc.Metadata.Ward,
		&doc.Metadata.Neighborhood,
		&doc.Metadata.Type,
		&storageKey,
		&fileName,
		&mimeType,
		&sizeBytes,
		&pageCount,
		&doc.StatusChangedAt,
		&nextAt,
	); err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	doc.StorageKey = storageKey.String
	doc.FileName = fileName.String
	doc.MimeType = mimeType.String
	doc.SizeBytes = sizeBytes.Int64
	doc.PageCount = int(pageCount.Int32)
	if nextAt.Valid {
		t := nextAt.Time
		doc.NextTransitionAt = &t
	}
	return doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var _ Repo = (*PGRepo)(nil)
