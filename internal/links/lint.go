package links

import (
	"fmt"

	"github.com/narvanalabs/diagrams/internal/models"
)

// Warning codes.
const (
	WarnDataSourceTarget     = "data_source_target_not_erd"
	WarnDecompositionPair    = "decomposition_type_mismatch"
	WarnImplementationSource = "implementation_source_type"
)

type typePair struct {
	source, target models.DiagramType
}

// decompositionPairs lists the cross-type decompositions that are expected.
// Same-type decompositions are always accepted.
var decompositionPairs = map[typePair]bool{
	{models.DiagramTypeBPMN, models.DiagramTypeDFD}: true,
}

// Lint returns the semantic warnings for a link of linkType between diagrams
// of the given types. Warnings never block a write.
func Lint(linkType models.LinkType, source, target models.DiagramType) []models.LinkWarning {
	warnings := []models.LinkWarning{}

	switch linkType {
	case models.LinkTypeDataSource:
		if target != models.DiagramTypeERD {
			warnings = append(warnings, models.LinkWarning{
				Code:    WarnDataSourceTarget,
				Message: fmt.Sprintf("A data_source link usually points to an erd diagram, not %s.", target),
			})
		}
	case models.LinkTypeDecomposition:
		if source != target && !decompositionPairs[typePair{source, target}] {
			warnings = append(warnings, models.LinkWarning{
				Code:    WarnDecompositionPair,
				Message: fmt.Sprintf("Decomposing a %s diagram into a %s diagram is unusual.", source, target),
			})
		}
	case models.LinkTypeImplementation:
		if source != models.DiagramTypeBPMN && source != models.DiagramTypeDFD {
			warnings = append(warnings, models.LinkWarning{
				Code:    WarnImplementationSource,
				Message: fmt.Sprintf("An implementation link usually starts from a bpmn or dfd diagram, not %s.", source),
			})
		}
	}

	return warnings
}
