package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

type documentRow struct {
	id, dealID           string
	docType, filename    string
	filePath             string
	fileSize             sql.NullInt64
	fileChecksum         sql.NullString
	createdAt, updatedAt int64
	syncedAt             sql.NullInt64
}

func (r *documentRow) targets() map[string]any {
	return map[string]any{
		"id":            &r.id,
		"deal_id":       &r.dealID,
		"type":          &r.docType,
		"filename":      &r.filename,
		"file_path":     &r.filePath,
		"file_size":     &r.fileSize,
		"file_checksum": &r.fileChecksum,
		"created_at":    &r.createdAt,
		"updated_at":    &r.updatedAt,
		"synced_at":     &r.syncedAt,
	}
}

func (r *documentRow) decode() (Document, error) {
	return Document{
		ID:           r.id,
		DealID:       r.dealID,
		Type:         r.docType,
		Filename:     r.filename,
		FilePath:     r.filePath,
		FileSize:     int64Ptr(r.fileSize),
		FileChecksum: strPtr(r.fileChecksum),
		CreatedAt:    fromMillis(r.createdAt),
		UpdatedAt:    fromMillis(r.updatedAt),
		SyncedAt:     timePtr(r.syncedAt),
	}, nil
}

func documentValues(d *Document) map[string]any {
	return map[string]any{
		"id":            d.ID,
		"deal_id":       d.DealID,
		"type":          d.Type,
		"filename":      d.Filename,
		"file_path":     d.FilePath,
		"file_size":     nullInt64(d.FileSize),
		"file_checksum": nullStr(d.FileChecksum),
		"created_at":    toMillis(d.CreatedAt),
		"updated_at":    toMillis(d.UpdatedAt),
		"synced_at":     nullMillis(d.SyncedAt),
	}
}

var documentSearchColumns = []string{"filename", "type"}

func validateDocument(d *Document) error {
	switch {
	case d.DealID == "":
		return fmt.Errorf("%w: document deal is required", ErrInvalidInput)
	case d.FilePath == "":
		return fmt.Errorf("%w: document file path is required", ErrInvalidInput)
	}
	return nil
}

func (s *Store) getDocument(ctx context.Context, q database.Querier, id string) (*Document, error) {
	query := "SELECT " + s.schema.documents.selectList() + " FROM documents WHERE id = ?"
	return queryEntity[Document, documentRow](ctx, q, documentLayouts.required(), query, id)
}

// CreateDocument stores metadata for a file attached to an existing deal.
func (s *Store) CreateDocument(ctx context.Context, d Document) (_ *Document, err error) {
	defer s.metrics.observe(EntityDocument, OpCreate, time.Now(), &err)

	l := s.schema.documents
	if err := writable(l, documentLayouts); err != nil {
		return nil, err
	}
	if err := validateDocument(&d); err != nil {
		return nil, err
	}

	d.ID = newID(d.ID)
	s.stamp(&d.CreatedAt, &d.UpdatedAt)
	d.SyncedAt = truncMillisPtr(d.SyncedAt)

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		if _, err := tx.ExecContext(ctx, l.insert(), args(documentValues(&d), l.columns)...); err != nil {
			return fmt.Errorf("inserting document: %w", mapWriteError(err, ErrInvalidReference))
		}
		return s.recordChange(ctx, tx, EntityDocument, d.ID, OpCreate, "")
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocument returns the document, or nil if there is none with id.
func (s *Store) GetDocument(ctx context.Context, id string) (_ *Document, err error) {
	defer s.metrics.observe(EntityDocument, "get", time.Now(), &err)

	var d *Document
	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		d, err = s.getDocument(ctx, q, id)
		return err
	})
	return d, err
}

// ListDocuments returns documents matching f, newest first.
func (s *Store) ListDocuments(ctx context.Context, f DocumentFilter) (_ []Document, err error) {
	defer s.metrics.observe(EntityDocument, "list", time.Now(), &err)

	var w where
	w.eqIf("deal_id", f.DealID)
	return s.listDocuments(ctx, &w)
}

// SearchDocuments matches query against file names and document types.
func (s *Store) SearchDocuments(ctx context.Context, query string) (_ []Document, err error) {
	defer s.metrics.observe(EntityDocument, "search", time.Now(), &err)

	var w where
	w.search(query, documentSearchColumns...)
	return s.listDocuments(ctx, &w)
}

func (s *Store) listDocuments(ctx context.Context, w *where) ([]Document, error) {
	query := "SELECT " + s.schema.documents.selectList() + " FROM documents" + w.String() + " ORDER BY created_at DESC, rowid DESC"

	var out []Document
	err := s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		out, err = queryEntities[Document, documentRow](ctx, q, documentLayouts.required(), query, w.args...)
		return err
	})
	return out, err
}

// UpdateDocument applies patch. The deal a document belongs to is fixed.
func (s *Store) UpdateDocument(ctx context.Context, id string, patch DocumentPatch) (_ *Document, err error) {
	defer s.metrics.observe(EntityDocument, OpUpdate, time.Now(), &err)

	l := s.schema.documents
	if err := writable(l, documentLayouts); err != nil {
		return nil, err
	}

	var updated *Document
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		d, err := s.getDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrNotFoundOrForbidden
		}

		patch.apply(d)
		if err := validateDocument(d); err != nil {
			return err
		}
		d.UpdatedAt = s.touch(d.UpdatedAt)

		set, cols := l.updateSet("id", "deal_id", "created_at")
		res, err := tx.ExecContext(ctx,
			"UPDATE documents SET "+set+" WHERE id = ?",
			append(args(documentValues(d), cols), id)...,
		)
		if err != nil {
			return fmt.Errorf("updating document: %w", mapWriteError(err, ErrInvalidReference))
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}

		updated = d
		return s.recordChange(ctx, tx, EntityDocument, id, OpUpdate, "")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDocument removes a document's metadata. The file itself is the
// caller's to remove.
func (s *Store) DeleteDocument(ctx context.Context, id string) (err error) {
	defer s.metrics.observe(EntityDocument, OpDelete, time.Now(), &err)

	return s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}
		return s.recordChange(ctx, tx, EntityDocument, id, OpDelete, "")
	})
}
