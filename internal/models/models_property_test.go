package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Names are accepted exactly when they are non-blank and within the limit.
func TestProjectNameValidation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("name bounds", prop.ForAll(
		func(name string) bool {
			err := (&Project{Name: name}).Validate()
			trimmed := strings.TrimSpace(name)
			valid := trimmed != "" && len([]rune(trimmed)) <= MaxNameLength
			if valid {
				return err == nil
			}
			var v *ValidationError
			return errors.As(err, &v) && v.Has("name") && errors.Is(err, ErrValidation)
		},
		gen.OneGenOf(
			gen.AlphaString(),
			gen.Const("   "),
			gen.IntRange(MaxNameLength-1, MaxNameLength+2).Map(func(n int) string {
				return strings.Repeat("n", n)
			}),
		),
	))

	properties.TestingRun(t)
}

func TestDiagramValidation(t *testing.T) {
	tests := []struct {
		name    string
		diagram Diagram
		fields  []string
	}{
		{"valid", Diagram{Name: "D", Type: DiagramTypeBPMN, Data: json.RawMessage(`{}`)}, nil},
		{"no data", Diagram{Name: "D", Type: DiagramTypeERD}, nil},
		{"bad type", Diagram{Name: "D", Type: "uml"}, []string{"diagram_type"}},
		{"bad json", Diagram{Name: "D", Type: DiagramTypeDFD, Data: json.RawMessage(`{`)}, []string{"data"}},
		{"long description", Diagram{Name: "D", Type: DiagramTypeDFD, Description: strings.Repeat("x", 256)}, []string{"description"}},
		{"everything", Diagram{Type: "x", Data: json.RawMessage(`nope`)}, []string{"name", "diagram_type", "data"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.diagram.Validate()
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			var v *ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			for _, f := range tt.fields {
				if !v.Has(f) {
					t.Errorf("missing failure for %s in %v", f, v)
				}
			}
		})
	}
}

func TestLinkValidateFields(t *testing.T) {
	long := strings.Repeat("e", MaxElementIDLength+1)
	l := &DiagramLink{SourceElementID: long, TargetElementID: &long, LinkType: "weird"}
	v := l.ValidateFields()
	for _, f := range []string{"source_element_id", "target_element_id", "link_type"} {
		if !v.Has(f) {
			t.Errorf("missing failure for %s", f)
		}
	}

	ok := &DiagramLink{SourceElementID: "e1", LinkType: LinkTypeDataSource}
	if err := ok.ValidateFields().OrNil(); err != nil {
		t.Errorf("valid link: %v", err)
	}
}

// A lock is consistent when holder and timestamp are set together with the flag.
func TestLockStateConsistency(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("consistency", prop.ForAll(
		func(locked, hasHolder, hasTime bool) bool {
			s := &LockState{IsLocked: locked}
			holder := "u1"
			at := time.Now()
			if hasHolder {
				s.LockedBy = &holder
			}
			if hasTime {
				s.LockedAt = &at
			}
			want := hasHolder == locked && hasTime == locked
			return s.Consistent() == want && s.HeldBy(holder) == (locked && hasHolder)
		},
		gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestInviteValidity(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	inv := &ProjectInvite{IsActive: true, ExpiresAt: now.Add(time.Hour)}

	if !inv.IsValidAt(now) || inv.IsExpiredAt(now) {
		t.Error("fresh invite should be valid")
	}
	if inv.IsValidAt(now.Add(time.Hour)) || !inv.IsExpiredAt(now.Add(time.Hour)) {
		t.Error("invite should expire at its deadline")
	}
	inv.IsActive = false
	if inv.IsValidAt(now) {
		t.Error("inactive invite should be invalid")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		kind error
		msg  string
	}{
		{NotFound("Diagram %s not found.", "d1"), ErrNotFound, "Diagram d1 not found."},
		{Forbidden("No."), ErrForbidden, "No."},
		{InvalidInvite("Gone."), ErrInvalidInvite, "Gone."},
		{NewValidationError("name", "bad"), ErrValidation, "name: bad"},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.kind) {
			t.Errorf("%v does not wrap %v", tt.err, tt.kind)
		}
		if tt.err.Error() != tt.msg {
			t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.msg)
		}
	}

	var empty ValidationError
	if empty.OrNil() != nil {
		t.Error("empty ValidationError should be nil")
	}
}
