package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/document-tables/internal/models"
)

const documentColumns = `id, filename, department_id, uploaded_by, filepath, document_type, status,
	error_message, uploaded_at, processing_started_at, processed_at`

// DocumentRepository handles document rows and their lifecycle transitions.
type DocumentRepository struct {
	db     *sql.DB
	tables *TableRepository
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *sql.DB, tables *TableRepository) *DocumentRepository {
	return &DocumentRepository{db: db, tables: tables}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Filename, &d.DepartmentID, &d.UploadedBy, &d.Filepath, &d.DocumentType,
		&d.Status, &d.ErrorMessage, &d.UploadedAt, &d.ProcessingStartedAt, &d.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a pending document and fills in its id and upload time.
func (r *DocumentRepository) Create(ctx context.Context, d *models.Document) error {
	d.Status = models.StatusPending
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO documents (filename, department_id, uploaded_by, filepath, document_type, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, uploaded_at`,
		d.Filename, d.DepartmentID, d.UploadedBy, d.Filepath, d.DocumentType, string(d.Status),
	).Scan(&d.ID, &d.UploadedAt)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	return nil
}

// GetByID returns ErrNotFound when the document does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %d: %w", id, err)
	}
	return d, nil
}

// List returns documents matching filter, newest first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	var w whereBuilder
	if filter.DepartmentID != nil {
		w.add("department_id = $%d", *filter.DepartmentID)
	}
	if filter.DocumentType != nil {
		w.add("document_type = $%d", *filter.DocumentType)
	}
	if filter.Status != nil {
		w.add("status = $%d", string(*filter.Status))
	}
	if filter.UploadedBy != nil {
		w.add("uploaded_by = $%d", *filter.UploadedBy)
	}
	query := `SELECT ` + documentColumns + ` FROM documents` + w.String() +
		` ORDER BY uploaded_at DESC, id DESC LIMIT ` + w.next(filter.Limit) + ` OFFSET ` + w.next(filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// Delete removes the document; its tables go with it through the cascade.
func (r *DocumentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BeginProcessing moves a pending or errored document to processing.
// It reports false when the document was in any other state or is gone.
func (r *DocumentRepository) BeginProcessing(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents
		 SET status = 'processing', error_message = NULL, processing_started_at = $2
		 WHERE id = $1 AND status IN ('pending', 'error')`,
		id, startedAt,
	)
	if err != nil {
		return false, fmt.Errorf("starting processing of document %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("starting processing of document %d: %w", id, err)
	}
	return n == 1, nil
}

// CompleteProcessing stores contents as the document's tables and marks it
// processed, atomically. ErrNotFound means the document left the processing
// state (or was deleted) and nothing was written.
func (r *DocumentRepository) CompleteProcessing(ctx context.Context, id int64, contents []json.RawMessage, processedAt time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.tables.InsertBatch(ctx, tx, id, contents); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET status = 'processed', processed_at = $2, error_message = NULL
			 WHERE id = $1 AND status = 'processing'`,
			id, processedAt,
		)
		if err != nil {
			return fmt.Errorf("marking document %d processed: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// MarkError records a failed run. ErrNotFound means the document left the
// processing state (or was deleted).
func (r *DocumentRepository) MarkError(ctx context.Context, id int64, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = 'error', error_message = $2, processed_at = NULL
		 WHERE id = $1 AND status = 'processing'`,
		id, message,
	)
	if err != nil {
		return fmt.Errorf("marking document %d failed: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetToPending clears the tables of a processed or errored document and
// returns it to pending in one transaction. It reports false, with nothing
// changed, when the document was in any other state.
func (r *DocumentRepository) ResetToPending(ctx context.Context, id int64) (bool, error) {
	reset := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := r.tables.DeleteByDocument(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE documents
			 SET status = 'pending', error_message = NULL, processed_at = NULL, processing_started_at = NULL
			 WHERE id = $1 AND status IN ('processed', 'error')`,
			id,
		)
		if err != nil {
			return fmt.Errorf("resetting document %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errNoTransition
		}
		reset = true
		return nil
	})
	if errors.Is(err, errNoTransition) {
		return false, nil
	}
	return reset, err
}

var errNoTransition = errors.New("no transition")

// Stats counts documents per status and their tables, optionally for one department.
func (r *DocumentRepository) Stats(ctx context.Context, departmentID *int64) (*models.DocumentStats, error) {
	var w whereBuilder
	if departmentID != nil {
		w.add("department_id = $%d", *departmentID)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents`+w.String()+` GROUP BY status`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	stats := &models.DocumentStats{ByStatus: map[models.DocumentStatus]int64{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusProcessed:  0,
		models.StatusError:      0,
	}}
	for rows.Next() {
		var status models.DocumentStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning document count: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	var tw whereBuilder
	if departmentID != nil {
		tw.add("d.department_id = $%d", *departmentID)
	}
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM extracted_tables t JOIN documents d ON d.id = t.document_id`+tw.String(),
		tw.args...,
	).Scan(&stats.TableCount)
	if err != nil {
		return nil, fmt.Errorf("counting tables: %w", err)
	}
	return stats, nil
}
