// Package upload decides where an uploaded document belongs and writes its bytes.
package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/pkg/logger"
	"github.com/feichai0017/document-tables/pkg/storage"
)

const timestampLayout = "20060102150405"

// DepartmentChecker reports whether a department exists
type DepartmentChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type Resolver struct {
	departments DepartmentChecker
	blobs       storage.Storage
	root        string
	logger      logger.Logger
	now         func() time.Time
	token       func() string
}

type Option func(*Resolver)

// WithClock overrides the time source used in storage keys.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithToken overrides the random disambiguator used in storage keys.
func WithToken(token func() string) Option {
	return func(r *Resolver) { r.token = token }
}

func NewResolver(departments DepartmentChecker, blobs storage.Storage, root string, log logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		departments: departments,
		blobs:       blobs,
		root:        root,
		logger:      log.Named("upload"),
		now:         time.Now,
		token: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveDepartment picks the department an upload is filed under. Operadores
// always upload into their own department; admins must name an existing one.
func (r *Resolver) ResolveDepartment(ctx context.Context, requested *int64, id models.Identity) (int64, error) {
	switch id.Role {
	case models.RoleOperador:
		if id.DepartmentID == nil {
			return 0, apperr.InvalidInput("user has no department assigned")
		}
		return *id.DepartmentID, nil
	case models.RoleAdmin:
		if requested == nil {
			return 0, apperr.InvalidInput("department_id is required for admin uploads")
		}
		exists, err := r.departments.Exists(ctx, *requested)
		if err != nil {
			return 0, apperr.Storage(err, "could not verify department")
		}
		if !exists {
			return 0, apperr.InvalidInput("department %d does not exist", *requested)
		}
		return *requested, nil
	default:
		return 0, apperr.Forbidden("unknown role %q", id.Role)
	}
}

// Key builds the storage key for a new upload.
func (r *Resolver) Key(departmentID int64, filename string) string {
	name := strings.ReplaceAll(path.Base(strings.ReplaceAll(filename, `\`, "/")), " ", "_")
	return path.Join(r.root,
		fmt.Sprintf("dept_%d", departmentID),
		fmt.Sprintf("%s_%s_%s", r.now().UTC().Format(timestampLayout), r.token(), name),
	)
}

// Store writes the upload under a fresh key and returns that key.
func (r *Resolver) Store(ctx context.Context, departmentID int64, filename string, body io.Reader) (string, error) {
	key := r.Key(departmentID, filename)
	if _, err := r.blobs.Store(ctx, body, key); err != nil {
		r.logger.Error("Failed to store upload",
			logger.String("key", key),
			logger.Int64("department_id", departmentID),
			logger.Error(err),
		)
		return "", apperr.Storage(err, "could not store file")
	}
	r.logger.Info("Stored upload", logger.String("key", key), logger.Int64("department_id", departmentID))
	return key, nil
}

// Discard removes a stored upload whose metadata could not be recorded.
func (r *Resolver) Discard(ctx context.Context, key string) {
	if err := r.blobs.Delete(ctx, key); err != nil {
		r.logger.Warn("Failed to discard orphaned upload", logger.String("key", key), logger.Error(err))
	}
}
