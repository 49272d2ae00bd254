package models

import (
	"encoding/json"
	"time"
)

// DiagramType is the notation a diagram is drawn in.
type DiagramType string

const (
	DiagramTypeBPMN DiagramType = "bpmn"
	DiagramTypeDFD  DiagramType = "dfd"
	DiagramTypeERD  DiagramType = "erd"
)

// Valid reports whether t is a supported diagram type.
func (t DiagramType) Valid() bool {
	switch t {
	case DiagramTypeBPMN, DiagramTypeDFD, DiagramTypeERD:
		return true
	}
	return false
}

// Diagram holds an opaque JSON document plus its advisory lock state.
type Diagram struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        DiagramType     `json:"diagram_type"`
	Data        json.RawMessage `json:"data"`
	IsLocked    bool            `json:"is_locked"`
	LockedBy    *string         `json:"-"`
	LockedAt    *time.Time      `json:"locked_at"`
	Holder      *UserRef        `json:"locked_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate validates the diagram fields.
func (d *Diagram) Validate() error {
	var fields ValidationError
	validateName(&fields, d.Name)
	validateDescription(&fields, d.Description)
	if !d.Type.Valid() {
		fields.Add("diagram_type", `"`+string(d.Type)+`" is not a valid choice.`)
	}
	if len(d.Data) > 0 && !json.Valid(d.Data) {
		fields.Add("data", "Value must be valid JSON.")
	}
	return fields.OrNil()
}

// Lock returns the lock state carried by the diagram row.
func (d *Diagram) Lock() *LockState {
	return &LockState{
		DiagramID: d.ID,
		IsLocked:  d.IsLocked,
		LockedBy:  d.LockedBy,
		LockedAt:  d.LockedAt,
		Holder:    d.Holder,
	}
}

// LockState is the advisory single-editor lock of a diagram.
// When IsLocked is false, LockedBy and LockedAt are nil.
type LockState struct {
	DiagramID string     `json:"diagram_id"`
	IsLocked  bool       `json:"is_locked"`
	LockedBy  *string    `json:"-"`
	LockedAt  *time.Time `json:"locked_at"`
	Holder    *UserRef   `json:"user"`
}

// HeldBy reports whether userID currently holds the lock.
func (l *LockState) HeldBy(userID string) bool {
	return l.IsLocked && l.LockedBy != nil && *l.LockedBy == userID
}

// Consistent reports whether the unlocked state carries no holder or timestamp.
func (l *LockState) Consistent() bool {
	if l.IsLocked {
		return l.LockedBy != nil && l.LockedAt != nil
	}
	return l.LockedBy == nil && l.LockedAt == nil
}

// DiagramSummary is the compact diagram view used by target pickers.
type DiagramSummary struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type DiagramType `json:"diagram_type"`
}

// LinkableProject groups the diagrams of one project for target selection.
type LinkableProject struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Diagrams []DiagramSummary `json:"diagrams"`
}
