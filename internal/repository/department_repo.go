package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feichai0017/document-tables/internal/models"
)

// DepartmentRepository handles department rows.
type DepartmentRepository struct {
	db *sql.DB
}

func NewDepartmentRepository(db *sql.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

func (r *DepartmentRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking department %d: %w", id, err)
	}
	return exists, nil
}

func (r *DepartmentRepository) GetByID(ctx context.Context, id int64) (*models.Department, error) {
	var d models.Department
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM departments WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying department %d: %w", id, err)
	}
	return &d, nil
}

func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM departments ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	depts := make([]models.Department, 0)
	for rows.Next() {
		var d models.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning department: %w", err)
		}
		depts = append(depts, d)
	}
	return depts, rows.Err()
}

// Create returns ErrDuplicate when the name is taken.
func (r *DepartmentRepository) Create(ctx context.Context, name string) (*models.Department, error) {
	d := models.Department{Name: name}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO departments (name) VALUES ($1) RETURNING id, created_at`, name,
	).Scan(&d.ID, &d.CreatedAt)
	if pqCode(err) == pqUniqueViolation {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("creating department: %w", err)
	}
	return &d, nil
}

// Update renames a department. ErrDuplicate means the name is taken.
func (r *DepartmentRepository) Update(ctx context.Context, id int64, name string) (*models.Department, error) {
	var d models.Department
	err := r.db.QueryRowContext(ctx,
		`UPDATE departments SET name = $2 WHERE id = $1 RETURNING id, name, created_at`, id, name,
	).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if pqCode(err) == pqUniqueViolation {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("updating department %d: %w", id, err)
	}
	return &d, nil
}

// Delete removes a department with all of its documents in one transaction
// (their tables cascade) and returns the removed documents so the caller can
// clean up their blobs. The department row is locked first so no upload can
// slip in between.
func (r *DepartmentRepository) Delete(ctx context.Context, id int64) ([]models.DocumentRef, error) {
	var removed []models.DocumentRef
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM departments WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking department %d: %w", id, err)
		}

		rows, err := tx.QueryContext(ctx,
			`DELETE FROM documents WHERE department_id = $1 RETURNING id, filepath`, id)
		if err != nil {
			return fmt.Errorf("deleting documents of department %d: %w", id, err)
		}
		defer rows.Close()
		removed = make([]models.DocumentRef, 0)
		for rows.Next() {
			var ref models.DocumentRef
			if err := rows.Scan(&ref.ID, &ref.Filepath); err != nil {
				return fmt.Errorf("scanning deleted document: %w", err)
			}
			removed = append(removed, ref)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id); err != nil {
			return fmt.Errorf("deleting department %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
