package document

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/feichai0017/document-tables/config"
	"github.com/feichai0017/document-tables/internal/extraction"
	"github.com/feichai0017/document-tables/internal/repository"
	"github.com/feichai0017/document-tables/internal/upload"
	"github.com/feichai0017/document-tables/internal/utils/validator"
	"github.com/feichai0017/document-tables/pkg/logger"
	"github.com/feichai0017/document-tables/pkg/queue"
	"github.com/feichai0017/document-tables/pkg/storage"
)

// Runtime is a fully wired service together with the resources it owns.
type Runtime struct {
	Service *DocumentService
	DB      *sql.DB
	closers []func() error
}

// Close releases the database, Redis and queue connections.
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GetService wires the document service from configuration.
func GetService(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*Runtime, error) {
	rt := &Runtime{}

	db, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rt.DB = db
	rt.closers = append(rt.closers, db.Close)

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			rt.Close()
			return nil, err
		}
		log.Info("Database schema applied")
	}

	store, err := storage.NewStorage(storage.StorageType(cfg.Storage.Backend), storage.Options{
		LocalRoot: cfg.Storage.LocalRoot,
	}, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	finder, err := newTableFinder(ctx, cfg.Extraction.TableFinder, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	tables := repository.NewTableRepository(db)
	departments := repository.NewDepartmentRepository(db)
	deps := Dependencies{
		Documents:   repository.NewDocumentRepository(db, tables),
		Tables:      tables,
		Departments: departments,
		Uploads:     upload.NewResolver(departments, store, cfg.Upload.Root, log),
		Blobs:       store,
		Extractor:   extraction.NewEngine(store, finder, log, &extraction.Config{MaxWorkers: cfg.Extraction.MaxWorkers}),
		Validator: validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize:  cfg.MaxFileSize(),
			AllowedTypes: validator.DefaultConfig().AllowedTypes,
			MaxPageCount: cfg.Upload.MaxPageCount,
		}),
	}

	redisCfg := config.GetRedisConfig()
	if redisCfg.Addr != "" {
		qcfg := &queue.Config{
			RedisAddr:     redisCfg.Addr,
			RedisPassword: redisCfg.Password,
			RedisDB:       redisCfg.DB,
		}
		client, err := queue.NewRedisClient(ctx, qcfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		deps.Cache = queue.NewStatusCache(client, redisCfg.StatusTTL)

		if cfg.AsyncProcessing {
			q := queue.NewAsynqQueue(qcfg)
			rt.closers = append(rt.closers, q.Close)
			deps.Queue = q
		}
	} else if cfg.AsyncProcessing {
		log.Warn("Asynchronous processing requested but REDIS_ADDR is not set; disabled")
	}

	rt.Service = NewService(deps, log)
	log.Info("Document service ready",
		logger.String("storage", cfg.Storage.Backend),
		logger.String("table_finder", finder.Name()),
		logger.Bool("status_cache", deps.Cache != nil),
		logger.Bool("async_processing", deps.Queue != nil),
	)
	return rt, nil
}

func newTableFinder(ctx context.Context, name string, log logger.Logger) (extraction.TableFinder, error) {
	switch name {
	case "", "layout":
		return extraction.NewLayoutFinder(), nil
	case "textract":
		tc := config.GetTextractConfig()
		finder, err := extraction.NewTextractFinder(ctx, &extraction.TextractConfig{
			Region:    tc.Region,
			Endpoint:  tc.Endpoint,
			AccessKey: tc.AccessKey,
			SecretKey: tc.SecretKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize textract: %w", err)
		}
		return finder, nil
	default:
		return nil, fmt.Errorf("unsupported table finder %q", name)
	}
}
