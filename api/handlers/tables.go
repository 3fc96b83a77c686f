package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/service/document"
	"github.com/feichai0017/document-tables/pkg/logger"
)

type TableHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

func NewTableHandler(service document.DocumentProcessor, logger logger.Logger) *TableHandler {
	return &TableHandler{service: service, logger: logger.Named("tables")}
}

func (h *TableHandler) Search(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	q := models.SearchQuery{Q: c.Query("q")}
	if q.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if q.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}
	if q.DepartmentID, ok = optionalInt64(c, c.Query("department_id"), "department_id"); !ok {
		return
	}

	hits, err := h.service.Search(c.Request.Context(), id, q)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits, "query": q.Q})
}

func (h *TableHandler) ByDocument(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	tables, err := h.service.Tables(c.Request.Context(), id, documentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": documentID, "tables": tables})
}

// Export renders into memory first so a failure can still produce a JSON error.
func (h *TableHandler) Export(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	format := c.DefaultQuery("format", document.FormatCSV)

	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), id, documentID, format, &buf); err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", document.ExportFilename(documentID, format)))
	c.Data(http.StatusOK, document.ContentType(format), buf.Bytes())
}

// ExportAll returns the tables of every document in the caller's scope as JSON.
func (h *TableHandler) ExportAll(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var filter document.ExportFilter
	if filter.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}
	if filter.DepartmentID, ok = optionalInt64(c, c.Query("department_id"), "department_id"); !ok {
		return
	}

	groups, err := h.service.ExportJSON(c.Request.Context(), id, filter)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": groups})
}
