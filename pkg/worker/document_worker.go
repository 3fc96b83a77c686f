package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/pkg/logger"
	"github.com/feichai0017/document-tables/pkg/queue"
)

// Processor runs the synchronous process operation
type Processor interface {
	Process(ctx context.Context, id models.Identity, documentID int64) (*models.Document, error)
}

type DocumentWorker struct {
	BaseWorker
	docService Processor
}

func NewDocumentWorker(cfg *Config, docService Processor, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Concurrency < 1 {
		return nil, errors.New("worker concurrency must be positive")
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{queue.QueueDefault: 1}
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      queues,
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log.Named("worker"),
		},
		docService: docService,
	}
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentProcess, w.handleDocumentProcess)
}

// handleDocumentProcess runs one queued process request. Every failure is
// final: the document already records extraction errors, and a refused
// transition means another call got there first.
func (w *DocumentWorker) handleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseProcessPayload(t)
	if err != nil {
		w.logger.Error("Invalid task data", logger.Error(err), logger.String("payload", string(t.Payload())))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if payload.RequestID != "" {
		ctx = logger.WithRequestID(ctx, payload.RequestID)
	}
	ctx = logger.WithSubjectID(ctx, payload.Identity.SubjectID)
	log := logger.FromContext(ctx, w.logger).With(logger.Int64("document_id", payload.DocumentID))
	log.Info("Processing document task")

	w.writeResult(t, `{"status":"running"}`)

	doc, err := w.docService.Process(ctx, payload.Identity, payload.DocumentID)
	if err != nil {
		w.writeResult(t, fmt.Sprintf(`{"status":"failed","kind":%q}`, apperr.KindOf(err)))
		switch apperr.KindOf(err) {
		case apperr.KindConflict, apperr.KindNotFound, apperr.KindForbidden:
			log.Warn("Document task skipped", logger.Error(err))
		default:
			log.Error("Document task failed", logger.Error(err))
		}
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.writeResult(t, fmt.Sprintf(`{"status":%q}`, doc.Status))
	log.Info("Document task completed", logger.String("status", string(doc.Status)))
	return nil
}

// writeResult records progress on the task; tasks built outside a server have no writer.
func (w *DocumentWorker) writeResult(t *asynq.Task, body string) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(body)); err != nil {
		w.logger.Warn("Failed to write task result", logger.Error(err))
	}
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
