// Package access decides which documents an identity may read or mutate.
package access

import (
	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
)

// CanAccess returns nil when id may act on doc and a Forbidden error otherwise.
// Admins reach every department; operadores only their own.
func CanAccess(id models.Identity, doc *models.Document) error {
	switch id.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleOperador:
		if id.DepartmentID != nil && *id.DepartmentID == doc.DepartmentID {
			return nil
		}
		return apperr.Forbidden("not authorized for document %d", doc.ID)
	default:
		return apperr.Forbidden("unknown role %q", id.Role)
	}
}

// ScopeDepartment returns the department filter a listing or search must use.
// An operador's request is replaced with their own department, never widened.
func ScopeDepartment(id models.Identity, requested *int64) *int64 {
	if id.Role == models.RoleAdmin {
		return requested
	}
	if id.DepartmentID == nil {
		// an operador without a department sees nothing rather than everything
		none := int64(0)
		return &none
	}
	own := *id.DepartmentID
	return &own
}

// RequireAdmin guards department administration.
func RequireAdmin(id models.Identity) error {
	if id.Role != models.RoleAdmin {
		return apperr.Forbidden("admin role required")
	}
	return nil
}
