// Package models provides data structures for the diagram collaboration backend.
package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role represents a user's role within a project.
type Role string

const (
	RoleOwner  Role = "owner"  // Full access, manages invites and project settings
	RoleEditor Role = "editor" // Granted by accepting an invite
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Field length limits shared by projects and diagrams.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 255
)

// Project is the top-level collaboration boundary that owns diagrams,
// memberships and invites.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"user"`
	Owner       string    `json:"owner,omitempty"` // owner username, filled on read
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectMembership links users to projects with roles.
type ProjectMembership struct {
	ProjectID string    `json:"project"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate validates the project fields.
func (p *Project) Validate() error {
	var fields ValidationError
	validateName(&fields, p.Name)
	validateDescription(&fields, p.Description)
	return fields.OrNil()
}

func validateName(fields *ValidationError, name string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		fields.Add("name", "This field may not be blank.")
	case utf8.RuneCountInString(name) > MaxNameLength:
		fields.Add("name", "Ensure this field has no more than 100 characters.")
	}
}

func validateDescription(fields *ValidationError, description string) {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		fields.Add("description", "Ensure this field has no more than 255 characters.")
	}
}
