package models

import (
	"encoding/json"
	"time"
)

// ExtractedTable is one persisted table derived from a document
type ExtractedTable struct {
	ID         int64           `json:"id"`
	DocumentID int64           `json:"document_id"`
	TableIndex int             `json:"table_index"`
	Content    json.RawMessage `json:"content"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableContent is the stored shape of a detected table
type TableContent struct {
	Page   int        `json:"page"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Grid returns the header (when present) followed by the body rows.
func (c *TableContent) Grid() [][]string {
	grid := make([][]string, 0, len(c.Rows)+1)
	if c.Header != nil {
		grid = append(grid, c.Header)
	}
	return append(grid, c.Rows...)
}

// SearchHit pairs a matching table with its parent document
type SearchHit struct {
	Document DocumentSummary `json:"document"`
	Table    ExtractedTable  `json:"table"`
}

// SearchQuery is a free-text search over table content
type SearchQuery struct {
	Q            string
	DepartmentID *int64
	Limit        int
	Offset       int
}

// DocumentTables groups a document's tables for JSON export
type DocumentTables struct {
	Document DocumentSummary  `json:"document"`
	Tables   []ExtractedTable `json:"tables"`
}
