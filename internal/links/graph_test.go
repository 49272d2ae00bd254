package links

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

type graphEnv struct {
	store *memory.Store
	graph *Graph
	alice *models.User
	bob   *models.User
}

func newGraphEnv(t *testing.T) *graphEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	st := memory.New(logger, memory.WithHashCost(bcrypt.MinCost))
	alice, err := st.Users().Create(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("creating alice: %v", err)
	}
	bob, err := st.Users().Create(ctx, "bob", "bob@example.com", "secret1")
	if err != nil {
		t.Fatalf("creating bob: %v", err)
	}
	return &graphEnv{
		store: st,
		graph: NewGraph(st, auth.NewMembershipAuthority(st, logger), logger),
		alice: alice,
		bob:   bob,
	}
}

func (e *graphEnv) project(t *testing.T, owner *models.User, name string) *models.Project {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{ID: uuid.New().String(), Name: name, OwnerID: owner.ID}
	if err := e.store.Projects().Create(ctx, p); err != nil {
		t.Fatalf("creating project: %v", err)
	}
	if _, err := e.store.Projects().AddMember(ctx, p.ID, owner.ID, models.RoleOwner); err != nil {
		t.Fatalf("adding owner: %v", err)
	}
	return p
}

func (e *graphEnv) diagram(t *testing.T, p *models.Project, name string, dt models.DiagramType) *models.Diagram {
	t.Helper()
	d := &models.Diagram{ID: uuid.New().String(), ProjectID: p.ID, Name: name, Type: dt}
	if err := e.store.Diagrams().Create(context.Background(), d); err != nil {
		t.Fatalf("creating diagram: %v", err)
	}
	return d
}

func TestCreateLinkWithWarnings(t *testing.T) {
	e := newGraphEnv(t)
	ctx := context.Background()
	p := e.project(t, e.alice, "P")
	d1 := e.diagram(t, p, "Process", models.DiagramTypeBPMN)
	d2 := e.diagram(t, p, "Flows", models.DiagramTypeDFD)

	link, warnings, err := e.graph.Create(ctx, d1.ID, e.alice.ID, CreateInput{
		SourceElementID: "Task_1",
		TargetDiagramID: d2.ID,
		LinkType:        models.LinkTypeDecomposition,
	})
	if err != nil {
		t.Fatalf("Create decomposition: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("bpmn to dfd decomposition warned: %+v", warnings)
	}
	if link.TargetDiagramName != "Flows" || link.SourceDiagramType != models.DiagramTypeBPMN || link.CreatorUsername != "alice" {
		t.Errorf("link not enriched: %+v", link)
	}

	_, warnings, err = e.graph.Create(ctx, d1.ID, e.alice.ID, CreateInput{
		SourceElementID: "Task_1",
		TargetDiagramID: d2.ID,
		LinkType:        models.LinkTypeDataSource,
	})
	if err != nil {
		t.Fatalf("Create data_source: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Code != WarnDataSourceTarget {
		t.Errorf("data_source to dfd warnings = %+v", warnings)
	}
}

func TestCreateLinkDefaultsToReference(t *testing.T) {
	e := newGraphEnv(t)
	p := e.project(t, e.alice, "P")
	d1 := e.diagram(t, p, "A", models.DiagramTypeERD)
	d2 := e.diagram(t, p, "B", models.DiagramTypeERD)

	link, _, err := e.graph.Create(context.Background(), d1.ID, e.alice.ID, CreateInput{
		SourceElementID: "Entity_1",
		TargetDiagramID: d2.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if link.LinkType != models.LinkTypeReference {
		t.Errorf("link type = %s, want reference", link.LinkType)
	}
}

// For every link type, a link from a diagram to itself is rejected with a
// validation error naming target_diagram and nothing is stored.
func TestSelfLinkRejected(t *testing.T) {
	e := newGraphEnv(t)
	p := e.project(t, e.alice, "P")
	d := e.diagram(t, p, "Self", models.DiagramTypeBPMN)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("self links are invalid", prop.ForAll(
		func(linkType models.LinkType, element string) bool {
			_, _, err := e.graph.Create(ctx, d.ID, e.alice.ID, CreateInput{
				SourceElementID: element,
				TargetDiagramID: d.ID,
				LinkType:        linkType,
			})
			var verr *models.ValidationError
			if !errors.As(err, &verr) || !verr.Has("target_diagram") {
				return false
			}
			set, err := e.graph.List(ctx, d.ID, e.alice.ID)
			return err == nil && len(set.Outgoing) == 0 && len(set.Incoming) == 0
		},
		gen.OneConstOf(
			models.LinkTypeReference,
			models.LinkTypeDecomposition,
			models.LinkTypeImplementation,
			models.LinkTypeDataSource,
		),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestCreateLinkCheckOrder(t *testing.T) {
	e := newGraphEnv(t)
	ctx := context.Background()
	pa := e.project(t, e.alice, "Alice's")
	pb := e.project(t, e.bob, "Bob's")
	da := e.diagram(t, pa, "A", models.DiagramTypeBPMN)
	db := e.diagram(t, pb, "B", models.DiagramTypeERD)

	// Missing source wins over everything.
	if _, _, err := e.graph.Create(ctx, uuid.New().String(), e.alice.ID, CreateInput{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing source error = %v, want NotFound", err)
	}
	// Membership of the source project comes before field validation.
	if _, _, err := e.graph.Create(ctx, da.ID, e.bob.ID, CreateInput{}); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-member source error = %v, want Forbidden", err)
	}
	// Unknown target is a field error.
	_, _, err := e.graph.Create(ctx, da.ID, e.alice.ID, CreateInput{SourceElementID: "x", TargetDiagramID: uuid.New().String()})
	var verr *models.ValidationError
	if !errors.As(err, &verr) || !verr.Has("target_diagram") {
		t.Errorf("missing target error = %v, want target_diagram validation error", err)
	}
	// Target in a project the caller is not in.
	_, _, err = e.graph.Create(ctx, da.ID, e.alice.ID, CreateInput{SourceElementID: "x", TargetDiagramID: db.ID})
	if !errors.Is(err, models.ErrForbidden) || err.Error() != msgNoTargetAccess {
		t.Errorf("foreign target error = %v, want Forbidden about the target", err)
	}

	if links, err := e.store.Links().ListOutgoing(ctx, da.ID); err != nil || len(links) != 0 {
		t.Errorf("rejected creates left links behind: %v %v", links, err)
	}
}

func TestCreateLinkValidatesFields(t *testing.T) {
	e := newGraphEnv(t)
	p := e.project(t, e.alice, "P")
	d1 := e.diagram(t, p, "A", models.DiagramTypeBPMN)
	d2 := e.diagram(t, p, "B", models.DiagramTypeBPMN)

	_, _, err := e.graph.Create(context.Background(), d1.ID, e.alice.ID, CreateInput{
		TargetDiagramID: d2.ID,
		LinkType:        "depends_on",
	})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if !verr.Has("source_element_id") || !verr.Has("link_type") {
		t.Errorf("fields = %+v", verr.Fields)
	}
}

func TestListPartitionsLinks(t *testing.T) {
	e := newGraphEnv(t)
	ctx := context.Background()
	p := e.project(t, e.alice, "P")
	d1 := e.diagram(t, p, "One", models.DiagramTypeBPMN)
	d2 := e.diagram(t, p, "Two", models.DiagramTypeDFD)
	d3 := e.diagram(t, p, "Three", models.DiagramTypeERD)

	mk := func(src, dst *models.Diagram, element string) *models.DiagramLink {
		l, _, err := e.graph.Create(ctx, src.ID, e.alice.ID, CreateInput{SourceElementID: element, TargetDiagramID: dst.ID})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		return l
	}
	out1 := mk(d1, d2, "Task_1")
	out2 := mk(d1, d3, "Task_2")
	in1 := mk(d3, d1, "Entity_1")

	set, err := e.graph.List(ctx, d1.ID, e.alice.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(set.Outgoing) != 2 || set.Outgoing[0].ID != out2.ID || set.Outgoing[1].ID != out1.ID {
		t.Errorf("outgoing = %+v", set.Outgoing)
	}
	if len(set.Incoming) != 1 || set.Incoming[0].ID != in1.ID {
		t.Errorf("incoming = %+v", set.Incoming)
	}
	for _, l := range set.Outgoing {
		if l.SourceDiagramID != d1.ID {
			t.Errorf("outgoing link %s has source %s", l.ID, l.SourceDiagramID)
		}
	}

	byElement, err := e.graph.ListForElement(ctx, d1.ID, "Task_2", e.alice.ID)
	if err != nil {
		t.Fatalf("ListForElement: %v", err)
	}
	if len(byElement) != 1 || byElement[0].ID != out2.ID {
		t.Errorf("element links = %+v", byElement)
	}

	projectLinks, err := e.graph.ListForProject(ctx, p.ID, e.alice.ID)
	if err != nil {
		t.Fatalf("ListForProject: %v", err)
	}
	if len(projectLinks) != 3 {
		t.Errorf("project links = %d, want 3", len(projectLinks))
	}
}

func TestUpdateAndDeleteLink(t *testing.T) {
	e := newGraphEnv(t)
	ctx := context.Background()
	p := e.project(t, e.alice, "P")
	d1 := e.diagram(t, p, "One", models.DiagramTypeERD)
	d2 := e.diagram(t, p, "Two", models.DiagramTypeBPMN)

	link, _, err := e.graph.Create(ctx, d1.ID, e.alice.ID, CreateInput{SourceElementID: "E", TargetDiagramID: d2.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	impl := models.LinkTypeImplementation
	target := "Task_9"
	updated, warnings, err := e.graph.Update(ctx, link.ID, e.alice.ID, UpdateInput{LinkType: &impl, TargetElementID: &target})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.LinkType != impl || updated.TargetElementID == nil || *updated.TargetElementID != target {
		t.Errorf("updated link = %+v", updated)
	}
	if len(warnings) != 1 || warnings[0].Code != WarnImplementationSource {
		t.Errorf("warnings = %+v", warnings)
	}

	if err := e.graph.Delete(ctx, link.ID, e.bob.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-member Delete error = %v, want Forbidden", err)
	}
	if err := e.graph.Delete(ctx, link.ID, e.alice.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.graph.Get(ctx, link.ID, e.alice.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want NotFound", err)
	}
}

func TestListLinkable(t *testing.T) {
	e := newGraphEnv(t)
	ctx := context.Background()
	pa := e.project(t, e.alice, "Alpha")
	empty := e.project(t, e.alice, "Empty")
	e.diagram(t, pa, "Zeta", models.DiagramTypeDFD)
	e.diagram(t, pa, "Alpha map", models.DiagramTypeBPMN)
	pb := e.project(t, e.bob, "Hidden")
	e.diagram(t, pb, "Secret", models.DiagramTypeERD)

	got, err := e.graph.ListLinkable(ctx, e.alice.ID)
	if err != nil {
		t.Fatalf("ListLinkable: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("projects = %+v, want 2", got)
	}
	for _, p := range got {
		switch p.ID {
		case pa.ID:
			if len(p.Diagrams) != 2 || p.Diagrams[0].Name != "Alpha map" {
				t.Errorf("diagrams of %s = %+v", p.Name, p.Diagrams)
			}
		case empty.ID:
			if p.Diagrams == nil || len(p.Diagrams) != 0 {
				t.Errorf("empty project diagrams = %+v", p.Diagrams)
			}
		default:
			t.Errorf("unexpected project %s", p.Name)
		}
	}
}
