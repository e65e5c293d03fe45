package locations

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/leapstack-labs/meshflow/internal/dag"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// Layout holds the three roots every path of a run derives from.
type Layout struct {
	BinDir    string
	InputDir  string
	OutputDir string
}

// LogDir is where stage logs are written.
func (l Layout) LogDir() string {
	return filepath.Join(l.OutputDir, "log")
}

// LogPath returns the log file of a stage inside logDir.
func LogPath(logDir string, id core.StageID) string {
	return filepath.Join(logDir, string(id)+"_log.txt")
}

// Specs maps every stage to its resolved spec.
type Specs map[core.StageID]core.StageSpec

// Ordered returns the specs of ids in the given order, skipping unknown ids.
func (s Specs) Ordered(ids []core.StageID) []core.StageSpec {
	out := make([]core.StageSpec, 0, len(ids))
	for _, id := range ids {
		if spec, ok := s[id]; ok {
			out = append(out, spec)
		}
	}
	return out
}

var validateOnce = sync.OnceValue(func() error {
	return validate(stages)
})

// Validate checks that the wiring table is acyclic, that every reference
// names a location of a stage earlier in the pipeline and that dependency
// order agrees with pipeline order. The check runs once.
func Validate() error {
	return validateOnce()
}

// Build resolves the specs of all stages for a layout. It is pure: nothing
// is created or inspected on disk. An invalid wiring table is a programming
// error and panics.
func Build(layout Layout) Specs {
	if err := Validate(); err != nil {
		panic(fmt.Sprintf("locations: invalid stage wiring: %v", err))
	}

	specs := make(Specs, len(stages))
	for _, id := range core.AllStages() {
		rec := stages[id]
		dir := filepath.Join(layout.OutputDir, rec.dir)
		spec := core.StageSpec{
			ID:        id,
			Binary:    filepath.Join(layout.BinDir, rec.binary),
			OutputDir: dir,
			Locations: make([]core.Location, 0, len(rec.bindings)),
		}
		for _, b := range rec.bindings {
			spec.Locations = append(spec.Locations, core.Location{
				Name: b.name,
				Path: resolve(b, layout, dir, specs),
			})
		}
		specs[id] = spec
	}
	return specs
}

func resolve(b binding, layout Layout, dir string, built Specs) string {
	switch b.kind {
	case bindImageFolder:
		return filepath.Clean(layout.InputDir)
	case bindOwned:
		return filepath.Join(dir, b.rel)
	default:
		upstream := built[b.from]
		base := upstream.OutputDir
		if b.key != DirKey {
			base, _ = upstream.Location(b.key)
		}
		return filepath.Join(base, b.join)
	}
}

// Binaries returns the binary file name of each stage in ids.
func Binaries(ids []core.StageID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if rec, ok := stages[id]; ok {
			names = append(names, rec.binary)
		}
	}
	return names
}

// Graph returns the stage dependency graph. Each edge is labeled
// "<upstream key> -> <downstream name>".
func Graph() *dag.Graph {
	g, _ := buildGraph(stages)
	return g
}

func edgeLabel(b binding) string {
	key := b.key
	if key == DirKey {
		key = "<dir>"
	}
	if b.join != "" {
		key += "/" + b.join
	}
	return key + " -> " + b.name
}

func buildGraph(table map[core.StageID]stageRecord) (*dag.Graph, error) {
	g := dag.NewGraph()
	for _, id := range core.AllStages() {
		g.AddNode(id)
	}

	var errs []error
	for _, id := range core.AllStages() {
		for _, b := range table[id].bindings {
			if b.kind != bindUpstream {
				continue
			}
			if err := g.AddEdge(b.from, id, edgeLabel(b)); err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", id, b.name, err))
			}
		}
	}
	return g, errors.Join(errs...)
}

func validate(table map[core.StageID]stageRecord) error {
	var errs []error
	order := core.AllStages()

	for pos, id := range order {
		rec, ok := table[id]
		if !ok {
			errs = append(errs, fmt.Errorf("stage %s has no wiring record", id))
			continue
		}
		seen := make(map[string]bool, len(rec.bindings))
		for _, b := range rec.bindings {
			if seen[b.name] {
				errs = append(errs, fmt.Errorf("%s: duplicate location %q", id, b.name))
			}
			seen[b.name] = true

			if b.kind != bindUpstream {
				continue
			}
			up, ok := table[b.from]
			if !ok {
				errs = append(errs, fmt.Errorf("%s.%s: unknown upstream stage %s", id, b.name, b.from))
				continue
			}
			if slices.Index(order, b.from) >= pos {
				errs = append(errs, fmt.Errorf("%s.%s: upstream %s does not run earlier", id, b.name, b.from))
			}
			if b.key != DirKey && !declares(up, b.key) {
				errs = append(errs, fmt.Errorf("%s.%s: %s has no location %q", id, b.name, b.from, b.key))
			}
		}
	}

	g, err := buildGraph(table)
	if err != nil {
		errs = append(errs, err)
	} else if sorted, err := g.TopologicalSort(); err != nil {
		errs = append(errs, err)
	} else if !slices.Equal(sorted, order) {
		errs = append(errs, fmt.Errorf("dependency order %v differs from pipeline order", sorted))
	}
	return errors.Join(errs...)
}

func declares(rec stageRecord, name string) bool {
	for _, b := range rec.bindings {
		if b.name == name {
			return true
		}
	}
	return false
}
