package models

import (
	"time"
)

// ProjectInvite is a single-use, time-boxed token that grants editor
// membership in a project once accepted.
type ProjectInvite struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project"`
	Token      string     `json:"token"`
	InvitedBy  string     `json:"invited_by_id"`
	Inviter    string     `json:"invited_by"` // inviter username, filled on read
	ExpiresAt  time.Time  `json:"expires_at"`
	IsActive   bool       `json:"is_active"`
	AcceptedBy *string    `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpiredAt returns true if the invite has expired at the given instant.
func (i *ProjectInvite) IsExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// IsExpired returns true if the invite has expired.
func (i *ProjectInvite) IsExpired() bool {
	return i.IsExpiredAt(time.Now())
}

// IsValidAt returns true if the invite can be accepted at the given instant.
func (i *ProjectInvite) IsValidAt(now time.Time) bool {
	return i.IsActive && !i.IsExpiredAt(now)
}

// IsValid returns true if the invite can be accepted.
func (i *ProjectInvite) IsValid() bool {
	return i.IsValidAt(time.Now())
}

// InviteInfo is the public view of an invite shown before acceptance.
type InviteInfo struct {
	ProjectID          string    `json:"project_id"`
	ProjectName        string    `json:"project_name"`
	ProjectDescription string    `json:"project_description"`
	OwnerUsername      string    `json:"owner_username"`
	IsValid            bool      `json:"is_valid"`
	IsExpired          bool      `json:"is_expired"`
	ExpiresAt          time.Time `json:"expires_at"`
}
