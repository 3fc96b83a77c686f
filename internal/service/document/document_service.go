package document

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/feichai0017/document-tables/internal/extraction"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/utils/validator"
	"github.com/feichai0017/document-tables/pkg/queue"
)

// DocumentProcessor is everything the transport layers can ask of documents.
type DocumentProcessor interface {
	Upload(ctx context.Context, id models.Identity, req UploadRequest) (*models.Document, error)
	Get(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error)
	List(ctx context.Context, id models.Identity, filter models.DocumentFilter) ([]models.Document, error)
	Search(ctx context.Context, id models.Identity, q models.SearchQuery) ([]models.SearchHit, error)
	Delete(ctx context.Context, id models.Identity, documentID int64) error
	Process(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error)
	ProcessAsync(ctx context.Context, id models.Identity, documentID int64) (string, error)
	Reprocess(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error)
	Status(ctx context.Context, id models.Identity, documentID int64) (*models.DocumentStatusView, error)
	Tables(ctx context.Context, id models.Identity, documentID int64) ([]models.ExtractedTable, error)
	ExportCSV(ctx context.Context, id models.Identity, documentID int64, w io.Writer) error
	ExportJSON(ctx context.Context, id models.Identity, filter ExportFilter) ([]models.DocumentTables, error)
	Export(ctx context.Context, id models.Identity, documentID int64, format string, w io.Writer) error
	Stats(ctx context.Context, id models.Identity) (*models.DocumentStats, error)

	ListDepartments(ctx context.Context, id models.Identity) ([]models.Department, error)
	GetDepartment(ctx context.Context, id models.Identity, departmentID int64) (*models.Department, error)
	CreateDepartment(ctx context.Context, id models.Identity, name string) (*models.Department, error)
	UpdateDepartment(ctx context.Context, id models.Identity, departmentID int64, name string) (*models.Department, error)
	DeleteDepartment(ctx context.Context, id models.Identity, departmentID int64) (*models.DepartmentDeletion, error)
	DepartmentStats(ctx context.Context, id models.Identity, departmentID int64) (*models.DepartmentStats, error)
	DepartmentSummary(ctx context.Context, id models.Identity) ([]models.DepartmentStats, error)
}

// DocumentStore persists documents and applies lifecycle transitions atomically.
type DocumentStore interface {
	Create(ctx context.Context, d *models.Document) error
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	Delete(ctx context.Context, id int64) error
	BeginProcessing(ctx context.Context, id int64, startedAt time.Time) (bool, error)
	CompleteProcessing(ctx context.Context, id int64, contents []json.RawMessage, processedAt time.Time) error
	MarkError(ctx context.Context, id int64, message string) error
	ResetToPending(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context, departmentID *int64) (*models.DocumentStats, error)
}

type TableStore interface {
	ListByDocument(ctx context.Context, documentID int64) ([]models.ExtractedTable, error)
	Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error)
}

type DepartmentStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Department, error)
	List(ctx context.Context) ([]models.Department, error)
	Create(ctx context.Context, name string) (*models.Department, error)
	Update(ctx context.Context, id int64, name string) (*models.Department, error)
	// Delete removes the department and its documents, returning what was removed
	Delete(ctx context.Context, id int64) ([]models.DocumentRef, error)
}

// Uploader places upload bytes on storage
type Uploader interface {
	ResolveDepartment(ctx context.Context, requested *int64, id models.Identity) (int64, error)
	Store(ctx context.Context, departmentID int64, filename string, body io.Reader) (string, error)
	Discard(ctx context.Context, key string)
}

type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

type Extractor interface {
	Extract(ctx context.Context, path string) (*extraction.Result, error)
}

type Validator interface {
	ValidateFile(in validator.FileInput) (*validator.ValidationResult, error)
}

// StatusCache is an optional read-through cache for Status.
type StatusCache interface {
	Get(ctx context.Context, documentID int64) (*models.DocumentStatusView, error)
	Set(ctx context.Context, view *models.DocumentStatusView) error
	Delete(ctx context.Context, documentID int64) error
}

// UploadRequest is one file submitted for ingestion
type UploadRequest struct {
	Filename     string
	ContentType  string
	Size         int64
	Body         io.ReadSeeker
	DepartmentID *int64
	DocumentType *string
}

// ExportFilter selects what a JSON export covers: one document when
// DocumentID is set, otherwise the caller's scoped listing.
type ExportFilter struct {
	DocumentID   *int64
	DepartmentID *int64
	Limit        int
	Offset       int
}

// Dependencies wires the service. Cache and Queue may be nil.
type Dependencies struct {
	Documents   DocumentStore
	Tables      TableStore
	Departments DepartmentStore
	Uploads     Uploader
	Blobs       BlobDeleter
	Extractor   Extractor
	Validator   Validator
	Cache       StatusCache
	Queue       queue.Queue
}
