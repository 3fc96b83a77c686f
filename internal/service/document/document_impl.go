package document

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/feichai0017/document-tables/internal/access"
	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/repository"
	"github.com/feichai0017/document-tables/internal/utils/validator"
	"github.com/feichai0017/document-tables/pkg/logger"
	"github.com/feichai0017/document-tables/pkg/queue"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxErrorMessageLength bounds the failure text stored on a document
	MaxErrorMessageLength = 500
)

type DocumentService struct {
	documents   DocumentStore
	tables      TableStore
	departments DepartmentStore
	uploads     Uploader
	blobs       BlobDeleter
	extractor   Extractor
	validator   Validator
	cache       StatusCache
	queue       queue.Queue
	logger      logger.Logger
	now         func() time.Time
}

var _ DocumentProcessor = (*DocumentService)(nil)

func NewService(deps Dependencies, log logger.Logger) *DocumentService {
	return &DocumentService{
		documents:   deps.Documents,
		tables:      deps.Tables,
		departments: deps.Departments,
		uploads:     deps.Uploads,
		blobs:       deps.Blobs,
		extractor:   deps.Extractor,
		validator:   deps.Validator,
		cache:       deps.Cache,
		queue:       deps.Queue,
		logger:      log.Named("documents"),
		now:         time.Now,
	}
}

// log returns the service logger carrying the request's correlation fields.
func (s *DocumentService) log(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, s.logger)
}

// storeErr maps repository failures onto the error taxonomy.
func storeErr(err error, format string, args ...interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Storage(err, "database operation failed")
}

// authorize loads a document and checks the caller may act on it.
func (s *DocumentService) authorize(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, storeErr(err, "document %d not found", documentID)
	}
	if err := access.CanAccess(id, doc); err != nil {
		s.log(ctx).Warn("Document access denied",
			logger.Int64("document_id", documentID),
			logger.Int64("department_id", doc.DepartmentID),
			logger.String("role", string(id.Role)),
		)
		return nil, err
	}
	return doc, nil
}

// pageBounds applies the default page size and rejects out-of-range paging.
func pageBounds(limit, offset int) (int, int, error) {
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return 0, 0, apperr.InvalidInput("limit must be between 1 and %d", MaxPageSize)
	}
	if offset < 0 {
		return 0, 0, apperr.InvalidInput("offset must not be negative")
	}
	return limit, offset, nil
}

// Upload validates the file, stores it and records a pending document.
func (s *DocumentService) Upload(ctx context.Context, id models.Identity, req UploadRequest) (*models.Document, error) {
	log := s.log(ctx).With(logger.String("filename", req.Filename))
	log.Info("Starting upload", logger.Int64("size", req.Size))

	if req.Body == nil {
		return nil, apperr.InvalidInput("file is required")
	}
	result, err := s.validator.ValidateFile(validator.FileInput{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
		Body:        req.Body,
	})
	if err != nil {
		log.Error("Failed to read upload", logger.Error(err))
		return nil, apperr.InvalidInput("could not read uploaded file")
	}
	if !result.IsValid {
		log.Warn("Upload rejected", logger.Any("errors", result.Errors))
		return nil, apperr.InvalidInput("%s", result.Message())
	}

	deptID, err := s.uploads.ResolveDepartment(ctx, req.DepartmentID, id)
	if err != nil {
		return nil, err
	}

	key, err := s.uploads.Store(ctx, deptID, req.Filename, req.Body)
	if err != nil {
		return nil, err
	}

	var docType *string
	if req.DocumentType != nil && strings.TrimSpace(*req.DocumentType) != "" {
		t := strings.TrimSpace(*req.DocumentType)
		docType = &t
	}
	doc := &models.Document{
		Filename:     req.Filename,
		DepartmentID: deptID,
		UploadedBy:   id.SubjectID,
		Filepath:     key,
		DocumentType: docType,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		log.Error("Failed to record document, discarding blob", logger.String("key", key), logger.Error(err))
		s.uploads.Discard(ctx, key)
		return nil, apperr.Storage(err, "could not record document")
	}

	s.cacheStatus(ctx, doc)
	log.Info("Document uploaded",
		logger.Int64("document_id", doc.ID),
		logger.Int64("department_id", deptID),
		logger.String("hash", result.FileInfo.Hash),
	)
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error) {
	return s.authorize(ctx, id, documentID)
}

// List returns the caller's visible documents, newest first.
func (s *DocumentService) List(ctx context.Context, id models.Identity, filter models.DocumentFilter) ([]models.Document, error) {
	limit, offset, err := pageBounds(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperr.InvalidInput("unknown status %q", *filter.Status)
	}
	filter.Limit, filter.Offset = limit, offset
	filter.DepartmentID = access.ScopeDepartment(id, filter.DepartmentID)

	docs, err := s.documents.List(ctx, filter)
	if err != nil {
		return nil, storeErr(err, "documents not found")
	}
	return docs, nil
}

// Search finds tables containing q within the caller's scope.
func (s *DocumentService) Search(ctx context.Context, id models.Identity, q models.SearchQuery) ([]models.SearchHit, error) {
	q.Q = strings.TrimSpace(q.Q)
	if q.Q == "" {
		return nil, apperr.InvalidInput("search query is required")
	}
	limit, offset, err := pageBounds(q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	q.Limit, q.Offset = limit, offset
	q.DepartmentID = access.ScopeDepartment(id, q.DepartmentID)

	hits, err := s.tables.Search(ctx, q)
	if err != nil {
		return nil, storeErr(err, "tables not found")
	}
	s.log(ctx).Debug("Table search", logger.String("q", q.Q), logger.Int("hits", len(hits)))
	return hits, nil
}

// Delete removes the document from any state. The row (and its tables) goes
// first so nothing ever references a missing blob; a blob that cannot be
// removed afterwards is logged and left behind.
func (s *DocumentService) Delete(ctx context.Context, id models.Identity, documentID int64) error {
	doc, err := s.authorize(ctx, id, documentID)
	if err != nil {
		return err
	}
	log := s.log(ctx).With(logger.Int64("document_id", documentID))

	if err := s.documents.Delete(ctx, documentID); err != nil {
		return storeErr(err, "document %d not found", documentID)
	}
	if err := s.blobs.Delete(ctx, doc.Filepath); err != nil {
		log.Warn("Failed to delete document blob", logger.String("key", doc.Filepath), logger.Error(err))
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, documentID); err != nil {
			log.Warn("Failed to evict cached status", logger.Error(err))
		}
	}
	log.Info("Document deleted", logger.String("previous_status", string(doc.Status)))
	return nil
}

// Status reports the lifecycle fields, served from the cache when present.
func (s *DocumentService) Status(ctx context.Context, id models.Identity, documentID int64) (*models.DocumentStatusView, error) {
	if s.cache != nil {
		view, err := s.cache.Get(ctx, documentID)
		if err != nil {
			s.log(ctx).Warn("Status cache unavailable", logger.Int64("document_id", documentID), logger.Error(err))
		}
		if view != nil {
			if err := access.CanAccess(id, &models.Document{ID: view.ID, DepartmentID: view.DepartmentID}); err != nil {
				return nil, err
			}
			return view, nil
		}
	}

	doc, err := s.authorize(ctx, id, documentID)
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, doc)
	return doc.StatusView(), nil
}

func (s *DocumentService) Tables(ctx context.Context, id models.Identity, documentID int64) ([]models.ExtractedTable, error) {
	if _, err := s.authorize(ctx, id, documentID); err != nil {
		return nil, err
	}
	tables, err := s.tables.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, storeErr(err, "document %d not found", documentID)
	}
	return tables, nil
}

// Stats counts documents by status within the caller's scope.
func (s *DocumentService) Stats(ctx context.Context, id models.Identity) (*models.DocumentStats, error) {
	stats, err := s.documents.Stats(ctx, access.ScopeDepartment(id, nil))
	if err != nil {
		return nil, storeErr(err, "statistics not found")
	}
	return stats, nil
}

// cacheStatus stores doc's status view; failures only cost a cache miss later.
func (s *DocumentService) cacheStatus(ctx context.Context, doc *models.Document) {
	if s.cache == nil || doc == nil {
		return
	}
	if err := s.cache.Set(ctx, doc.StatusView()); err != nil {
		s.log(ctx).Warn("Failed to cache status", logger.Int64("document_id", doc.ID), logger.Error(err))
	}
}

// refreshStatus re-reads a document after a transition and caches it.
func (s *DocumentService) refreshStatus(ctx context.Context, documentID int64) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if s.cache != nil && errors.Is(err, repository.ErrNotFound) {
			_ = s.cache.Delete(ctx, documentID)
		}
		return nil, storeErr(err, "document %d not found", documentID)
	}
	s.cacheStatus(ctx, doc)
	return doc, nil
}
