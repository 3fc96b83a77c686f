package models

import (
	"time"
)

// DocumentStatus is the processing state of an uploaded document
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusError      DocumentStatus = "error"
)

// Valid reports whether s is one of the known lifecycle states.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusError:
		return true
	}
	return false
}

// Processable reports whether a process call may start from s.
func (s DocumentStatus) Processable() bool {
	return s == StatusPending || s == StatusError
}

// Reprocessable reports whether a reprocess call may start from s.
func (s DocumentStatus) Reprocessable() bool {
	return s == StatusProcessed || s == StatusError
}

// Document is an uploaded PDF owned by one department
type Document struct {
	ID                  int64          `json:"id" db:"id"`
	Filename            string         `json:"filename" db:"filename"`
	DepartmentID        int64          `json:"department_id" db:"department_id"`
	UploadedBy          int64          `json:"uploaded_by" db:"uploaded_by"`
	Filepath            string         `json:"filepath" db:"filepath"`
	DocumentType        *string        `json:"document_type,omitempty" db:"document_type"`
	Status              DocumentStatus `json:"status" db:"status"`
	ErrorMessage        *string        `json:"error_message,omitempty" db:"error_message"`
	UploadedAt          time.Time      `json:"uploaded_at" db:"uploaded_at"`
	ProcessingStartedAt *time.Time     `json:"processing_started_at,omitempty" db:"processing_started_at"`
	ProcessedAt         *time.Time     `json:"processed_at,omitempty" db:"processed_at"`
}

// Summary returns the subset of fields attached to search hits and exports.
func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:           d.ID,
		Filename:     d.Filename,
		DepartmentID: d.DepartmentID,
		UploadedAt:   d.UploadedAt,
		Status:       d.Status,
	}
}

// DocumentSummary is the parent-document view joined onto table results
type DocumentSummary struct {
	ID           int64          `json:"id"`
	Filename     string         `json:"filename"`
	DepartmentID int64          `json:"department_id"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	Status       DocumentStatus `json:"status"`
}

// DocumentRef identifies a removed document and the blob it owned
type DocumentRef struct {
	ID       int64
	Filepath string
}

// DocumentStatusView is what the status operation returns
type DocumentStatusView struct {
	ID                  int64          `json:"id"`
	DepartmentID        int64          `json:"department_id"`
	Status              DocumentStatus `json:"status"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	ProcessingStartedAt *time.Time     `json:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time     `json:"processed_at,omitempty"`
}

// StatusView projects the document onto its status fields.
func (d *Document) StatusView() *DocumentStatusView {
	v := &DocumentStatusView{
		ID:                  d.ID,
		DepartmentID:        d.DepartmentID,
		Status:              d.Status,
		ProcessingStartedAt: d.ProcessingStartedAt,
		ProcessedAt:         d.ProcessedAt,
	}
	if d.ErrorMessage != nil {
		v.ErrorMessage = *d.ErrorMessage
	}
	return v
}

// DocumentFilter narrows a document listing
type DocumentFilter struct {
	DepartmentID *int64
	DocumentType *string
	Status       *DocumentStatus
	UploadedBy   *int64
	Limit        int
	Offset       int
}

// DocumentStats counts documents per status within a scope
type DocumentStats struct {
	Total      int64                    `json:"total_documents"`
	ByStatus   map[DocumentStatus]int64 `json:"by_status"`
	TableCount int64                    `json:"total_tables"`
}
