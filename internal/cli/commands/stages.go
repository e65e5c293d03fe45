package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/internal/structure"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// NewStagesCommand creates the stages command.
func NewStagesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the stages of a pipeline and their dependencies",
		Long: `List the stages run for an output type, in execution order, with the
binary each stage launches and the artifacts it reads from earlier stages.`,
		Example: `  # Full pipeline
  meshflow stages

  # Stages of a point cloud run, as JSON
  meshflow stages --output-type POINT_CLOUD --format json`,
		RunE: runStages,
	}
	addOutputTypeFlag(cmd)
	return cmd
}

// StageInfo is one stage in the stages output.
type StageInfo struct {
	Position  int              `json:"position"`
	ID        core.StageID     `json:"id"`
	Binary    string           `json:"binary"`
	DependsOn []StageReference `json:"depends_on"`
}

// StageReference is an artifact a stage reads from an earlier stage.
type StageReference struct {
	Stage    core.StageID `json:"stage"`
	Artifact string       `json:"artifact"`
}

// StagesOutput is the structured output of the stages command.
type StagesOutput struct {
	OutputType core.OutputType `json:"output_type"`
	Stages     []StageInfo     `json:"stages"`
}

func runStages(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	out, err := buildStagesOutput(cc.Cfg.OutputType)
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeYAML:
		return r.YAML(out)
	}

	r.Header(1, fmt.Sprintf("%s pipeline (%d stages)", out.OutputType, len(out.Stages)))
	rows := make([][]string, 0, len(out.Stages))
	for _, s := range out.Stages {
		deps := ""
		for i, d := range s.DependsOn {
			if i > 0 {
				deps += "\n"
			}
			deps += fmt.Sprintf("%s (%s)", d.Stage, d.Artifact)
		}
		rows = append(rows, []string{fmt.Sprint(s.Position), stageTitle(s.ID), s.Binary, deps})
	}
	r.Table([]string{"#", "Stage", "Binary", "Reads from"}, rows)
	return nil
}

// buildStagesOutput lists the stages of outputType. An empty output type
// means the full pipeline.
func buildStagesOutput(rawOutputType string) (StagesOutput, error) {
	ot := core.OutputTexturedMesh
	if rawOutputType != "" {
		var err error
		if ot, err = core.ParseOutputType(rawOutputType); err != nil {
			return StagesOutput{}, err
		}
	}
	ids, err := structure.Resolve(ot)
	if err != nil {
		return StagesOutput{}, err
	}

	deps := make(map[core.StageID][]StageReference)
	for _, e := range locations.Graph().Subgraph(ids).Edges() {
		deps[e.To] = append(deps[e.To], StageReference{Stage: e.From, Artifact: e.Label})
	}

	binaries := locations.Binaries(ids)
	out := StagesOutput{OutputType: ot}
	for i, id := range ids {
		refs := deps[id]
		if refs == nil {
			refs = []StageReference{}
		}
		out.Stages = append(out.Stages, StageInfo{
			Position:  i + 1,
			ID:        id,
			Binary:    binaries[i],
			DependsOn: refs,
		})
	}
	return out, nil
}
