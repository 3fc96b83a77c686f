package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-tables/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopOnce sync.Once
}

// Stop shuts the server down; calling it more than once is harmless.
func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.server != nil {
			w.server.Shutdown()
		}
	})
	return nil
}
