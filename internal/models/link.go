package models

import (
	"time"
	"unicode/utf8"
)

// LinkType classifies the relationship a link expresses.
type LinkType string

const (
	LinkTypeReference      LinkType = "reference"
	LinkTypeDecomposition  LinkType = "decomposition"
	LinkTypeImplementation LinkType = "implementation"
	LinkTypeDataSource     LinkType = "data_source"
)

// Valid reports whether t is a supported link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkTypeReference, LinkTypeDecomposition, LinkTypeImplementation, LinkTypeDataSource:
		return true
	}
	return false
}

// Field length limits for links.
const (
	MaxElementIDLength    = 100
	MaxElementLabelLength = 255
)

// DiagramLink is a directed edge from an element of the source diagram to
// the target diagram, optionally to one of its elements.
type DiagramLink struct {
	ID                 string    `json:"id"`
	SourceDiagramID    string    `json:"source_diagram"`
	SourceElementID    string    `json:"source_element_id"`
	SourceElementLabel string    `json:"source_element_label"`
	TargetDiagramID    string    `json:"target_diagram"`
	TargetElementID    *string   `json:"target_element_id"`
	LinkType           LinkType  `json:"link_type"`
	Description        string    `json:"description"`
	CreatedBy          string    `json:"created_by_id"`
	CreatedAt          time.Time `json:"created_at"`

	// Display fields filled on read so clients need no extra lookups.
	SourceDiagramName string      `json:"source_diagram_name"`
	SourceDiagramType DiagramType `json:"source_diagram_type"`
	TargetDiagramName string      `json:"target_diagram_name"`
	TargetDiagramType DiagramType `json:"target_diagram_type"`
	CreatorUsername   string      `json:"created_by"`
}

// ValidateFields checks the link fields that do not need other diagrams.
func (l *DiagramLink) ValidateFields() *ValidationError {
	var fields ValidationError
	switch {
	case l.SourceElementID == "":
		fields.Add("source_element_id", "This field is required.")
	case utf8.RuneCountInString(l.SourceElementID) > MaxElementIDLength:
		fields.Add("source_element_id", "Ensure this field has no more than 100 characters.")
	}
	if utf8.RuneCountInString(l.SourceElementLabel) > MaxElementLabelLength {
		fields.Add("source_element_label", "Ensure this field has no more than 255 characters.")
	}
	if l.TargetElementID != nil && utf8.RuneCountInString(*l.TargetElementID) > MaxElementIDLength {
		fields.Add("target_element_id", "Ensure this field has no more than 100 characters.")
	}
	if !l.LinkType.Valid() {
		fields.Add("link_type", `"`+string(l.LinkType)+`" is not a valid choice.`)
	}
	return &fields
}

// LinkSet partitions the links touching one diagram.
type LinkSet struct {
	Outgoing []*DiagramLink `json:"outgoing"`
	Incoming []*DiagramLink `json:"incoming"`
}

// LinkWarning is a non-blocking semantic remark about a link.
type LinkWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
