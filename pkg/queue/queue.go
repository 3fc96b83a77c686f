package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-tables/internal/models"
)

const (
	TaskTypeDocumentProcess = "document:process"

	QueueDefault = "default"
)

// ProcessPayload asks a worker to run process on one document
type ProcessPayload struct {
	DocumentID  int64           `json:"documentId"`
	Identity    models.Identity `json:"identity"`
	RequestID   string          `json:"requestId,omitempty"`
	RequestedAt time.Time       `json:"requestedAt"`
}

// Queue hands process requests to the worker
type Queue interface {
	EnqueueProcess(ctx context.Context, payload ProcessPayload) (string, error)
	Close() error
}

type Config struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ProcessTimeout time.Duration
}

// AsynqQueue enqueues process tasks without retries: a task that fails
// leaves the document in error and a retry must be requested explicitly.
type AsynqQueue struct {
	client  *asynq.Client
	timeout time.Duration
}

func (c *Config) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func NewAsynqQueue(cfg *Config) *AsynqQueue {
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &AsynqQueue{
		client:  asynq.NewClient(cfg.RedisOpt()),
		timeout: timeout,
	}
}

// NewProcessTask builds the asynq task for payload.
func NewProcessTask(payload ProcessPayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(TaskTypeDocumentProcess, data,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Queue(QueueDefault),
		asynq.TaskID(uuid.NewString()),
	), nil
}

// ParseProcessPayload decodes a task built by NewProcessTask.
func ParseProcessPayload(t *asynq.Task) (*ProcessPayload, error) {
	var p ProcessPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if p.DocumentID <= 0 {
		return nil, fmt.Errorf("invalid task data: missing document id")
	}
	return &p, nil
}

// EnqueueProcess implements Queue.EnqueueProcess and returns the task id.
func (q *AsynqQueue) EnqueueProcess(ctx context.Context, payload ProcessPayload) (string, error) {
	t, err := NewProcessTask(payload, q.timeout)
	if err != nil {
		return "", err
	}
	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info.ID, nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}
