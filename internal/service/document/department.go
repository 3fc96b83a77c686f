package document

import (
	"context"
	"errors"
	"strings"

	"github.com/feichai0017/document-tables/internal/access"
	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/repository"
	"github.com/feichai0017/document-tables/pkg/logger"
)

const maxDepartmentNameLength = 100

func (s *DocumentService) ListDepartments(ctx context.Context, id models.Identity) ([]models.Department, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	depts, err := s.departments.List(ctx)
	if err != nil {
		return nil, storeErr(err, "departments not found")
	}
	return depts, nil
}

func (s *DocumentService) GetDepartment(ctx context.Context, id models.Identity, departmentID int64) (*models.Department, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		return nil, storeErr(err, "department %d not found", departmentID)
	}
	return dept, nil
}

func (s *DocumentService) CreateDepartment(ctx context.Context, id models.Identity, name string) (*models.Department, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	name, err := departmentName(name)
	if err != nil {
		return nil, err
	}

	dept, err := s.departments.Create(ctx, name)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.Conflict("department %q already exists", name)
	}
	if err != nil {
		return nil, storeErr(err, "department not found")
	}
	s.log(ctx).Info("Department created", logger.Int64("department_id", dept.ID), logger.String("name", name))
	return dept, nil
}

func departmentName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.InvalidInput("department name is required")
	}
	if len([]rune(name)) > maxDepartmentNameLength {
		return "", apperr.InvalidInput("department name must be at most %d characters", maxDepartmentNameLength)
	}
	return name, nil
}

func (s *DocumentService) UpdateDepartment(ctx context.Context, id models.Identity, departmentID int64, name string) (*models.Department, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	name, err := departmentName(name)
	if err != nil {
		return nil, err
	}

	dept, err := s.departments.Update(ctx, departmentID, name)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.Conflict("department %q already exists", name)
	}
	if err != nil {
		return nil, storeErr(err, "department %d not found", departmentID)
	}
	s.log(ctx).Info("Department renamed", logger.Int64("department_id", dept.ID), logger.String("name", name))
	return dept, nil
}

// DeleteDepartment removes the department together with its documents and
// their tables, then deletes the stored files. Rows go first; a file that
// cannot be removed is logged and counted, never left referenced by a row.
func (s *DocumentService) DeleteDepartment(ctx context.Context, id models.Identity, departmentID int64) (*models.DepartmentDeletion, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	removed, err := s.departments.Delete(ctx, departmentID)
	if err != nil {
		return nil, storeErr(err, "department %d not found", departmentID)
	}

	log := s.log(ctx).With(logger.Int64("department_id", departmentID))
	result := &models.DepartmentDeletion{DepartmentID: departmentID, DocumentsDeleted: len(removed)}
	for _, ref := range removed {
		if err := s.blobs.Delete(ctx, ref.Filepath); err != nil {
			result.BlobsOrphaned++
			log.Warn("Failed to delete document blob",
				logger.Int64("document_id", ref.ID),
				logger.String("key", ref.Filepath),
				logger.Error(err),
			)
		}
		if s.cache != nil {
			if err := s.cache.Delete(ctx, ref.ID); err != nil {
				log.Warn("Failed to evict cached status", logger.Int64("document_id", ref.ID), logger.Error(err))
			}
		}
	}
	log.Info("Department deleted",
		logger.Int("documents_deleted", result.DocumentsDeleted),
		logger.Int("blobs_orphaned", result.BlobsOrphaned),
	)
	return result, nil
}

// DepartmentStats reports document figures for one department.
func (s *DocumentService) DepartmentStats(ctx context.Context, id models.Identity, departmentID int64) (*models.DepartmentStats, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		return nil, storeErr(err, "department %d not found", departmentID)
	}
	return s.departmentStats(ctx, *dept)
}

// DepartmentSummary reports document figures for every department, by name.
func (s *DocumentService) DepartmentSummary(ctx context.Context, id models.Identity) ([]models.DepartmentStats, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	depts, err := s.departments.List(ctx)
	if err != nil {
		return nil, storeErr(err, "departments not found")
	}
	out := make([]models.DepartmentStats, 0, len(depts))
	for _, dept := range depts {
		st, err := s.departmentStats(ctx, dept)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (s *DocumentService) departmentStats(ctx context.Context, dept models.Department) (*models.DepartmentStats, error) {
	deptID := dept.ID
	stats, err := s.documents.Stats(ctx, &deptID)
	if err != nil {
		return nil, storeErr(err, "department %d not found", dept.ID)
	}
	return &models.DepartmentStats{Department: dept, DocumentStats: *stats}, nil
}
