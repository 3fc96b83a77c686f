package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/extraction"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/repository"
	"github.com/feichai0017/document-tables/pkg/logger"
	"github.com/feichai0017/document-tables/pkg/queue"
)

// Process runs extraction on a pending or failed document and stores its tables.
//
// The pending|error -> processing step is a single conditional update, so of two
// concurrent calls exactly one proceeds and the other gets Conflict. Rows from
// earlier runs are not cleared here: a document can only reach processing from
// pending (no rows yet, or cleared by Reprocess) or from error, and a failed run
// writes nothing because tables and the processed state commit together.
func (s *DocumentService) Process(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error) {
	doc, err := s.authorize(ctx, id, documentID)
	if err != nil {
		return nil, err
	}
	log := s.log(ctx).With(
		logger.Int64("document_id", documentID),
		logger.Int64("department_id", doc.DepartmentID),
	)

	started, err := s.documents.BeginProcessing(ctx, documentID, s.now().UTC())
	if err != nil {
		return nil, storeErr(err, "document %d not found", documentID)
	}
	if !started {
		return nil, s.transitionRefused(ctx, documentID, "processed")
	}
	log.Info("Processing started", logger.String("previous_status", string(doc.Status)))
	s.refreshStatus(ctx, documentID)

	result, err := s.extractor.Extract(ctx, doc.Filepath)

	// The outcome is recorded even if the caller has gone away, so the
	// document never stays in processing because of a dropped request.
	wctx := context.WithoutCancel(ctx)
	if err != nil {
		return nil, s.fail(wctx, log, documentID, err)
	}

	contents, err := tableContents(result)
	if err != nil {
		return nil, s.fail(wctx, log, documentID, err)
	}

	if err := s.documents.CompleteProcessing(wctx, documentID, contents, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("Document removed during processing, results dropped")
			return nil, apperr.NotFound("document %d not found", documentID)
		}
		log.Error("Failed to store extraction results", logger.Error(err))
		if markErr := s.documents.MarkError(wctx, documentID, truncateMessage("failed to store results: "+err.Error())); markErr != nil {
			log.Error("Failed to record processing error", logger.Error(markErr))
		}
		s.refreshStatus(wctx, documentID)
		return nil, apperr.Storage(err, "could not store extraction results")
	}

	log.Info("Processing completed",
		logger.Int("pages", result.PageCount),
		logger.Int("tables", len(result.Tables)),
		logger.Int("records", len(contents)),
	)
	return s.refreshStatus(wctx, documentID)
}

// fail moves the document to error and returns the caller-facing failure.
func (s *DocumentService) fail(ctx context.Context, log logger.Logger, documentID int64, cause error) error {
	log.Error("Processing failed", logger.Error(cause))
	msg := truncateMessage(cause.Error())
	if msg == "" {
		msg = "processing failed"
	}
	if err := s.documents.MarkError(ctx, documentID, msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("Document removed during processing, failure not recorded")
			return apperr.NotFound("document %d not found", documentID)
		}
		log.Error("Failed to record processing error", logger.Error(err))
		return apperr.Storage(err, "could not record processing failure")
	}
	s.refreshStatus(ctx, documentID)
	return apperr.Extraction(cause)
}

// Reprocess clears a finished document's tables and returns it to pending.
func (s *DocumentService) Reprocess(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error) {
	doc, err := s.authorize(ctx, id, documentID)
	if err != nil {
		return nil, err
	}
	reset, err := s.documents.ResetToPending(ctx, documentID)
	if err != nil {
		return nil, storeErr(err, "document %d not found", documentID)
	}
	if !reset {
		return nil, s.transitionRefused(ctx, documentID, "reprocessed")
	}
	s.log(ctx).Info("Document reset for reprocessing",
		logger.Int64("document_id", documentID),
		logger.String("previous_status", string(doc.Status)),
	)
	return s.refreshStatus(ctx, documentID)
}

// ProcessAsync checks the document can be processed and hands it to the
// worker. The worker goes through Process, so the same conditional
// transition applies; tasks are never retried automatically.
func (s *DocumentService) ProcessAsync(ctx context.Context, id models.Identity, documentID int64) (string, error) {
	if s.queue == nil {
		return "", apperr.InvalidInput("asynchronous processing is not enabled")
	}
	doc, err := s.authorize(ctx, id, documentID)
	if err != nil {
		return "", err
	}
	if !doc.Status.Processable() {
		return "", apperr.Conflict("document %d is %s and cannot be processed", documentID, doc.Status)
	}

	taskID, err := s.queue.EnqueueProcess(ctx, queue.ProcessPayload{
		DocumentID:  documentID,
		Identity:    id,
		RequestID:   logger.RequestID(ctx),
		RequestedAt: s.now().UTC(),
	})
	if err != nil {
		s.log(ctx).Error("Failed to enqueue processing", logger.Int64("document_id", documentID), logger.Error(err))
		return "", apperr.Storage(err, "could not schedule processing")
	}
	s.log(ctx).Info("Processing scheduled",
		logger.Int64("document_id", documentID),
		logger.String("task_id", taskID),
	)
	return taskID, nil
}

// transitionRefused explains why a conditional transition matched no row.
func (s *DocumentService) transitionRefused(ctx context.Context, documentID int64, verb string) error {
	current, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return storeErr(err, "document %d not found", documentID)
	}
	return apperr.Conflict("document %d is %s and cannot be %s", documentID, current.Status, verb)
}

// tableContents turns a result into the records to store: one per table, or a
// single record holding the whole result when no table was found.
func tableContents(result *extraction.Result) ([]json.RawMessage, error) {
	if len(result.Tables) == 0 {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extraction result: %w", err)
		}
		return []json.RawMessage{data}, nil
	}
	contents := make([]json.RawMessage, 0, len(result.Tables))
	for i := range result.Tables {
		data, err := json.Marshal(result.Tables[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode table %d: %w", i, err)
		}
		contents = append(contents, data)
	}
	return contents, nil
}

// truncateMessage keeps at most MaxErrorMessageLength characters.
func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorMessageLength])
}
