package auth

import (
	"github.com/narvanalabs/diagrams/internal/models"
)

// Permission represents an action that can be performed inside a project.
type Permission string

const (
	// PermissionViewProject allows reading the project, its members and diagrams.
	PermissionViewProject Permission = "view_project"
	// PermissionEditDiagrams allows creating, editing, locking and linking diagrams.
	PermissionEditDiagrams Permission = "edit_diagrams"
	// PermissionManageProject allows renaming and deleting the project.
	PermissionManageProject Permission = "manage_project"
	// PermissionManageInvites allows issuing, listing and revoking invites.
	PermissionManageInvites Permission = "manage_invites"
)

// rolePermissions defines which permissions each role has.
// Every member may edit diagrams; the viewer role is recorded but not narrowed.
var rolePermissions = map[models.Role][]Permission{
	models.RoleOwner: {
		PermissionViewProject,
		PermissionEditDiagrams,
		PermissionManageProject,
		PermissionManageInvites,
	},
	models.RoleEditor: {
		PermissionViewProject,
		PermissionEditDiagrams,
	},
	models.RoleViewer: {
		PermissionViewProject,
		PermissionEditDiagrams,
	},
}

// HasPermission reports whether role grants permission.
func HasPermission(role models.Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
