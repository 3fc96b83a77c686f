package models

import "time"

// Role is the caller's authorization role
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperador Role = "operador"
)

// Identity is the authenticated caller as carried by the access token
type Identity struct {
	SubjectID    int64  `json:"sub"`
	Role         Role   `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
}

// IsAdmin reports whether the caller has unrestricted scope.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Department is a tenant scope documents and operadores belong to
type Department struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DepartmentStats pairs a department with the figures of its documents
type DepartmentStats struct {
	Department Department `json:"department"`
	DocumentStats
}

// DepartmentDeletion reports what removing a department took with it
type DepartmentDeletion struct {
	DepartmentID     int64 `json:"department_id"`
	DocumentsDeleted int   `json:"documents_deleted"`
	// BlobsOrphaned counts stored files that could not be removed
	BlobsOrphaned int `json:"blobs_orphaned"`
}
