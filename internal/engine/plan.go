package engine

import (
	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/internal/params"
	"github.com/leapstack-labs/meshflow/internal/structure"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// Request is the caller-facing description of a run before resolution.
type Request struct {
	Layout     locations.Layout
	Quality    string
	OutputType string
	ImageCount int
	// ManifestPath is the optional results manifest
	ManifestPath string
	// Overrides replace catalog options: stage id -> option -> value
	Overrides map[string]map[string]string
}

// Plan is a fully resolved run: every stage, option and path is known.
type Plan struct {
	Quality      core.Quality
	OutputType   core.OutputType
	Stages       []core.StageID
	Params       core.ParameterSet
	Specs        locations.Specs
	Layout       locations.Layout
	ImageCount   int
	ManifestPath string
}

// BuildPlan resolves a request. Every error it returns wraps
// core.ErrConfiguration, and no stage has run when it fails.
func BuildPlan(req Request) (Plan, error) {
	q, err := core.ParseQuality(req.Quality)
	if err != nil {
		return Plan{}, err
	}
	ot, err := core.ParseOutputType(req.OutputType)
	if err != nil {
		return Plan{}, err
	}
	stages, err := structure.Resolve(ot)
	if err != nil {
		return Plan{}, err
	}
	set, err := params.ResolveForImages(q, req.ImageCount)
	if err != nil {
		return Plan{}, err
	}
	set, err = params.ApplyOverrides(set, req.Overrides)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Quality:      q,
		OutputType:   ot,
		Stages:       stages,
		Params:       set,
		Specs:        locations.Build(req.Layout),
		Layout:       req.Layout,
		ImageCount:   req.ImageCount,
		ManifestPath: req.ManifestPath,
	}, nil
}
