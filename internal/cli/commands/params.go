package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/engine"
	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/internal/runner"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// ParamsOptions holds options for the params command.
type ParamsOptions struct {
	Set      []string
	Commands bool
}

// NewParamsCommand creates the params command.
func NewParamsCommand() *cobra.Command {
	opts := &ParamsOptions{}
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Show the resolved stage parameters",
		Long: `Resolve the parameter catalog for a quality tier and image count and print
the options every stage receives, after overrides.

With --commands the full command line of each stage is printed using the
configured binaries, input and output folders. Nothing is executed.`,
		Example: `  # Options for a 200 image HIGH quality run
  meshflow params --quality HIGH --image-count 200

  # Command lines of a mesh run, as YAML
  meshflow params --quality DRAFT --image-count 20 --output-type MESH \
    --bin ./bin --input ./images --output ./out --commands --format yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runParams(cmd, opts)
		},
	}
	addQualityFlag(cmd)
	addOutputTypeFlag(cmd)
	cmd.Flags().Int("image-count", 0, "Number of input images")
	cmd.Flags().String("bin", "", "Folder containing the AliceVision binaries")
	cmd.Flags().String("input", "", "Folder containing the input images")
	cmd.Flags().String("output", "", "Folder receiving stage outputs")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "Override a stage option as stage.option=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Commands, "commands", false, "Print full stage command lines")
	return cmd
}

// ParamsOutput is the structured output of the params command.
type ParamsOutput struct {
	Quality     core.Quality     `json:"quality"`
	DatasetSize core.DatasetSize `json:"dataset_size"`
	ImageCount  int              `json:"image_count"`
	OutputType  core.OutputType  `json:"output_type"`
	Stages      []StageParams    `json:"stages"`
}

// StageParams holds the options of one stage.
type StageParams struct {
	ID      core.StageID      `json:"id"`
	Options map[string]string `json:"options"`
	Order   []string          `json:"order"`
	Command []string          `json:"command,omitempty"`
}

func runParams(cmd *cobra.Command, opts *ParamsOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	out, err := buildParamsOutput(cc.Cfg.Quality, cc.Cfg.OutputType, cc.Cfg.ImageCount,
		locations.Layout{BinDir: cc.Cfg.BinDir, InputDir: cc.Cfg.InputDir, OutputDir: cc.Cfg.OutputDir},
		cc.Cfg.ParameterOverrides, opts)
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

	r.Header(1, fmt.Sprintf("%s parameters for %d images (%s dataset)", out.Quality, out.ImageCount, out.DatasetSize))
	for _, s := range out.Stages {
		r.Header(2, stageTitle(s.ID))
		if len(s.Order) == 0 {
			r.Muted("no options")
		} else {
			rows := make([][]string, 0, len(s.Order))
			for _, name := range s.Order {
				rows = append(rows, []string{name, s.Options[name]})
			}
			r.Table([]string{"Option", "Value"}, rows)
		}
		if len(s.Command) > 0 {
			r.Muted(strings.Join(s.Command, " "))
		}
		r.Println("")
	}
	return nil
}

func buildParamsOutput(quality, outputType string, imageCount int, layout locations.Layout,
	configured map[string]map[string]string, opts *ParamsOptions) (ParamsOutput, error) {
	if quality == "" {
		return ParamsOutput{}, fmt.Errorf("%w: missing required settings: --quality", core.ErrConfiguration)
	}
	if outputType == "" {
		outputType = string(core.OutputTexturedMesh)
	}
	overrides, err := mergeOverrides(configured, opts.Set)
	if err != nil {
		return ParamsOutput{}, err
	}
	plan, err := engine.BuildPlan(engine.Request{
		Layout:     layout,
		Quality:    quality,
		OutputType: outputType,
		ImageCount: imageCount,
		Overrides:  overrides,
	})
	if err != nil {
		return ParamsOutput{}, err
	}

	out := ParamsOutput{
		Quality:     plan.Quality,
		DatasetSize: plan.Params.DatasetSize,
		ImageCount:  imageCount,
		OutputType:  plan.OutputType,
	}
	for _, id := range plan.Stages {
		stageOpts := plan.Params.Stage(id)
		sp := StageParams{
			ID:      id,
			Options: make(map[string]string, len(stageOpts)),
			Order:   make([]string, 0, len(stageOpts)),
		}
		for _, o := range stageOpts {
			sp.Options[o.Name] = o.Value
			sp.Order = append(sp.Order, o.Name)
		}
		if opts.Commands {
			sp.Command = runner.CommandLine(plan.Specs[id], stageOpts)
		}
		out.Stages = append(out.Stages, sp)
	}
	return out, nil
}
