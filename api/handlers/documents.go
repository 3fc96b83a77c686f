package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/service/document"
	"github.com/feichai0017/document-tables/pkg/logger"
)

// multipartOverhead leaves room for form fields and part headers around the file.
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	service        document.DocumentProcessor
	maxUploadBytes int64
	logger         logger.Logger
}

// ProcessAcceptedResponse is returned when processing was queued
type ProcessAcceptedResponse struct {
	DocumentID int64  `json:"document_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
}

func NewDocumentHandler(service document.DocumentProcessor, maxUploadBytes int64, logger logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("documents"),
	}
}

// Upload stores one PDF for later processing.
func (h *DocumentHandler) Upload(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(c, "file exceeds the maximum upload size")
			return
		}
		badRequest(c, "a multipart file field named \"file\" is required")
		return
	}
	defer file.Close()

	departmentID, ok := optionalInt64(c, c.PostForm("department_id"), "department_id")
	if !ok {
		return
	}

	doc, err := h.service.Upload(c.Request.Context(), id, document.UploadRequest{
		Filename:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		Body:         file,
		DepartmentID: departmentID,
		DocumentType: optionalString(c.PostForm("document_type")),
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	filter := models.DocumentFilter{DocumentType: optionalString(c.Query("document_type"))}
	if filter.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}
	if filter.DepartmentID, ok = optionalInt64(c, c.Query("department_id"), "department_id"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := models.DocumentStatus(raw)
		if !status.Valid() {
			badRequest(c, "unknown status "+strconv.Quote(raw))
			return
		}
		filter.Status = &status
	}

	docs, err := h.service.List(c.Request.Context(), id, filter)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "limit": filter.Limit, "offset": filter.Offset})
}

func (h *DocumentHandler) Stats(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), id, documentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, documentID); err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Process extracts tables synchronously, or queues the work with ?async=true.
func (h *DocumentHandler) Process(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	async := false
	if raw := c.Query("async"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "async must be a boolean")
			return
		}
		async = v
	}

	if async {
		taskID, err := h.service.ProcessAsync(c.Request.Context(), id, documentID)
		if err != nil {
			handleError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusAccepted, ProcessAcceptedResponse{
			DocumentID: documentID,
			TaskID:     taskID,
			Status:     string(models.StatusPending),
		})
		return
	}

	doc, err := h.service.Process(c.Request.Context(), id, documentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.Reprocess(c.Request.Context(), id, documentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Status(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.service.Status(c.Request.Context(), id, documentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
