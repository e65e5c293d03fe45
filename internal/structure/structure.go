// Package structure selects which stages a run executes for an output type.
package structure

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/leapstack-labs/meshflow/internal/dag"
	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// stageCounts is how many leading stages of the full pipeline each output
// type runs. Every output type extends the previous one.
var stageCounts = map[core.OutputType]int{
	core.OutputPointCloud:   5,
	core.OutputMesh:         10,
	core.OutputFilteredMesh: 11,
	core.OutputTexturedMesh: 12,
}

var validateOnce = sync.OnceValue(func() error {
	return checkClosed(locations.Graph())
})

// Validate checks that every output type runs all the stages its stages
// depend on. The check runs once.
func Validate() error {
	return validateOnce()
}

// Resolve returns the ordered stage list for outputType.
func Resolve(outputType core.OutputType) ([]core.StageID, error) {
	n, ok := stageCounts[outputType]
	if !ok {
		return nil, core.NewConfigError("output type", string(outputType))
	}
	if err := Validate(); err != nil {
		return nil, fmt.Errorf("stage selection: %w", err)
	}
	return core.AllStages()[:n], nil
}

func checkClosed(g *dag.Graph) error {
	var errs []error
	for _, ot := range core.OutputTypes() {
		ids := core.AllStages()[:stageCounts[ot]]
		for _, id := range ids {
			for _, up := range g.GetUpstreamNodes(id) {
				if !slices.Contains(ids, up) {
					errs = append(errs, fmt.Errorf("%s: %s depends on %s, which does not run", ot, id, up))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Deliverables returns the deliverables a run of outputType can produce.
func Deliverables(outputType core.OutputType) []core.Deliverable {
	switch outputType {
	case core.OutputPointCloud:
		return []core.Deliverable{core.DeliverablePointCloud}
	case core.OutputMesh:
		return []core.Deliverable{core.DeliverablePointCloud, core.DeliverableMesh}
	case core.OutputFilteredMesh:
		return []core.Deliverable{core.DeliverablePointCloud, core.DeliverableMesh, core.DeliverableFilteredMesh}
	case core.OutputTexturedMesh:
		return core.Deliverables()
	}
	return nil
}
