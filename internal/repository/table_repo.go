package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
)

const maxPageSize = 100

// TableRepository handles extracted_tables rows.
type TableRepository struct {
	db *sql.DB
}

// NewTableRepository creates a new TableRepository.
func NewTableRepository(db *sql.DB) *TableRepository {
	return &TableRepository{db: db}
}

// Insert stores a single table for a document.
func (r *TableRepository) Insert(ctx context.Context, documentID int64, tableIndex int, content json.RawMessage) (*models.ExtractedTable, error) {
	t := models.ExtractedTable{DocumentID: documentID, TableIndex: tableIndex, Content: content}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO extracted_tables (document_id, table_index, content)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		documentID, tableIndex, []byte(content),
	).Scan(&t.ID, &t.CreatedAt)
	if pqCode(err) == pqForeignKeyViolation {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inserting table for document %d: %w", documentID, err)
	}
	return &t, nil
}

// InsertBatch stores contents in order with table_index 0..n-1 inside tx.
// A deleted parent document surfaces as ErrNotFound.
func (r *TableRepository) InsertBatch(ctx context.Context, tx DBTX, documentID int64, contents []json.RawMessage) error {
	for i, content := range contents {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO extracted_tables (document_id, table_index, content) VALUES ($1, $2, $3)`,
			documentID, i, []byte(content),
		)
		if pqCode(err) == pqForeignKeyViolation {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("inserting table %d for document %d: %w", i, documentID, err)
		}
	}
	return nil
}

// ListByDocument returns a document's tables in insertion order.
func (r *TableRepository) ListByDocument(ctx context.Context, documentID int64) ([]models.ExtractedTable, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, table_index, content, created_at
		 FROM extracted_tables WHERE document_id = $1 ORDER BY id ASC`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tables for document %d: %w", documentID, err)
	}
	defer rows.Close()

	tables := make([]models.ExtractedTable, 0)
	for rows.Next() {
		var t models.ExtractedTable
		var content []byte
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.TableIndex, &content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		t.Content = json.RawMessage(content)
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// DeleteByDocument removes every table of a document and returns how many went.
func (r *TableRepository) DeleteByDocument(ctx context.Context, tx DBTX, documentID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM extracted_tables WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting tables for document %d: %w", documentID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// stringLeafMatch matches tables where some string value anywhere in the
// content contains the pattern. Keys, numbers and nulls never match.
const stringLeafMatch = `EXISTS (SELECT 1 FROM jsonb_path_query(t.content, 'strict $.**') AS leaf(v)
		WHERE jsonb_typeof(leaf.v) = 'string' AND leaf.v #>> '{}' LIKE $%d)`

// Search finds tables with a cell, header or summary string containing q,
// newest first. Out-of-range paging is rejected rather than clamped.
func (r *TableRepository) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	if q.Limit < 1 || q.Limit > maxPageSize {
		return nil, apperr.InvalidInput("limit must be between 1 and %d", maxPageSize)
	}
	if q.Offset < 0 {
		return nil, apperr.InvalidInput("offset must not be negative")
	}

	var w whereBuilder
	w.add(stringLeafMatch, likePattern(q.Q))
	if q.DepartmentID != nil {
		w.add("d.department_id = $%d", *q.DepartmentID)
	}
	query := `SELECT t.id, t.document_id, t.table_index, t.content, t.created_at,
			d.id, d.filename, d.department_id, d.uploaded_at, d.status
		FROM extracted_tables t JOIN documents d ON d.id = t.document_id` + w.String() +
		` ORDER BY t.id DESC LIMIT ` + w.next(q.Limit) + ` OFFSET ` + w.next(q.Offset)

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("searching tables: %w", err)
	}
	defer rows.Close()

	hits := make([]models.SearchHit, 0)
	for rows.Next() {
		var h models.SearchHit
		var content []byte
		err := rows.Scan(&h.Table.ID, &h.Table.DocumentID, &h.Table.TableIndex, &content, &h.Table.CreatedAt,
			&h.Document.ID, &h.Document.Filename, &h.Document.DepartmentID, &h.Document.UploadedAt, &h.Document.Status)
		if err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		h.Table.Content = json.RawMessage(content)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
