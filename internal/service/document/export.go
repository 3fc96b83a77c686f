package document

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/feichai0017/document-tables/internal/access"
	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/pkg/logger"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var csvHeader = []string{"table_index", "row_index", "col_index", "value"}

// storedContent covers both record shapes: a detected table, and the fallback
// record holding a whole extraction result.
type storedContent struct {
	models.TableContent
	Summary string                `json:"summary"`
	Tables  []models.TableContent `json:"tables"`
}

func (c *storedContent) isFallback() bool {
	return c.Summary != ""
}

// ExportCSV writes every cell of every stored table as one CSV row.
func (s *DocumentService) ExportCSV(ctx context.Context, id models.Identity, documentID int64, w io.Writer) error {
	tables, err := s.Tables(ctx, id, documentID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return apperr.Storage(err, "could not write export")
	}
	for _, t := range tables {
		var content storedContent
		if err := json.Unmarshal(t.Content, &content); err != nil {
			s.log(ctx).Warn("Skipping unreadable table content",
				logger.Int64("document_id", documentID),
				logger.Int64("table_id", t.ID),
				logger.Error(err),
			)
			continue
		}
		if content.isFallback() {
			for i := range content.Tables {
				if err := writeGrid(cw, i, content.Tables[i].Grid()); err != nil {
					return apperr.Storage(err, "could not write export")
				}
			}
			continue
		}
		if err := writeGrid(cw, t.TableIndex, content.Grid()); err != nil {
			return apperr.Storage(err, "could not write export")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperr.Storage(err, "could not write export")
	}
	return nil
}

func writeGrid(cw *csv.Writer, tableIndex int, grid [][]string) error {
	ti := strconv.Itoa(tableIndex)
	for r, row := range grid {
		ri := strconv.Itoa(r)
		for c, value := range row {
			if err := cw.Write([]string{ti, ri, strconv.Itoa(c), value}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExportJSON groups stored tables by their document.
func (s *DocumentService) ExportJSON(ctx context.Context, id models.Identity, filter ExportFilter) ([]models.DocumentTables, error) {
	var docs []models.Document
	if filter.DocumentID != nil {
		doc, err := s.authorize(ctx, id, *filter.DocumentID)
		if err != nil {
			return nil, err
		}
		docs = []models.Document{*doc}
	} else {
		list, err := s.List(ctx, id, models.DocumentFilter{
			DepartmentID: access.ScopeDepartment(id, filter.DepartmentID),
			Limit:        filter.Limit,
			Offset:       filter.Offset,
		})
		if err != nil {
			return nil, err
		}
		docs = list
	}

	out := make([]models.DocumentTables, 0, len(docs))
	for i := range docs {
		tables, err := s.tables.ListByDocument(ctx, docs[i].ID)
		if err != nil {
			return nil, storeErr(err, "document %d not found", docs[i].ID)
		}
		out = append(out, models.DocumentTables{Document: docs[i].Summary(), Tables: tables})
	}
	return out, nil
}

// Export writes one document's tables in the requested format.
func (s *DocumentService) Export(ctx context.Context, id models.Identity, documentID int64, format string, w io.Writer) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV, "":
		return s.ExportCSV(ctx, id, documentID, w)
	case FormatJSON:
		groups, err := s.ExportJSON(ctx, id, ExportFilter{DocumentID: &documentID})
		if err != nil {
			return err
		}
		if err := json.NewEncoder(w).Encode(groups); err != nil {
			return apperr.Storage(err, "could not write export")
		}
		return nil
	default:
		return apperr.InvalidInput("unsupported export format %q", format)
	}
}

// ContentType is the media type of an export format.
func ContentType(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		return "application/json"
	}
	return "text/csv"
}

// ExportFilename names the download for a document export.
func ExportFilename(documentID int64, format string) string {
	ext := FormatCSV
	if strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		ext = FormatJSON
	}
	return fmt.Sprintf("document_%d_tables.%s", documentID, ext)
}
