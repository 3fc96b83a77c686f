package handlers

import (
	"github.com/feichai0017/document-tables/internal/service/document"
	"github.com/feichai0017/document-tables/pkg/logger"
)

type Handlers struct {
	Document   *DocumentHandler
	Table      *TableHandler
	Department *DepartmentHandler
	Health     *HealthHandler
	User       *UserHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	db Pinger,
	maxUploadBytes int64,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Document:   NewDocumentHandler(documentService, maxUploadBytes, logger),
		Table:      NewTableHandler(documentService, logger),
		Department: NewDepartmentHandler(documentService, logger),
		Health:     NewHealthHandler(db, logger),
		User:       &UserHandler{},
	}
}
