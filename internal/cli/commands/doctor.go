package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/config"
	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/internal/structure"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that a run can start",
		Long: `Check the environment of a run before starting it:
- every binary needed for the output type is present and executable
- the input folder exists and holds images
- the output and status folders can be created
- the stage wiring is consistent

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  meshflow doctor --bin ./aliceVision/bin --output-type MESH
  meshflow doctor --format json`,
		RunE: runDoctor,
	}
	cmd.Flags().String("bin", "", "Folder containing the AliceVision binaries")
	cmd.Flags().String("input", "", "Folder containing the input images")
	cmd.Flags().String("output", "", "Folder receiving stage outputs")
	cmd.Flags().String("status", "", "Folder receiving status.json")
	cmd.Flags().Int("image-count", 0, "Number of input images")
	addOutputTypeFlag(cmd)
	return cmd
}

// Health check statuses.
const (
	checkPass = "pass"
	checkWarn = "warn"
	checkFail = "error"
)

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "pass", "warn", "error"
	Details []string `json:"details,omitempty"`
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	OutputType   core.OutputType `json:"output_type"`
	HealthChecks []HealthCheck   `json:"health_checks"`
	Failures     int             `json:"failures"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	out, err := buildDoctorOutput(cc.Cfg)
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		err = r.JSON(out)
	case output.ModeYAML:
		err = r.YAML(out)
	default:
		renderDoctor(r, out)
	}
	if err != nil {
		return err
	}
	if out.Failures > 0 {
		return fmt.Errorf("doctor found %d failing checks", out.Failures)
	}
	return nil
}

func buildDoctorOutput(cfg *config.Config) (*DoctorOutput, error) {
	ot := core.OutputTexturedMesh
	if cfg.OutputType != "" {
		var err error
		if ot, err = core.ParseOutputType(cfg.OutputType); err != nil {
			return nil, err
		}
	}
	ids, err := structure.Resolve(ot)
	if err != nil {
		return nil, err
	}

	out := &DoctorOutput{OutputType: ot}
	add := func(c HealthCheck) {
		if c.Status == checkFail {
			out.Failures++
		}
		out.HealthChecks = append(out.HealthChecks, c)
	}

	add(checkWiring())
	add(checkBinaries(cfg.BinDir, locations.Binaries(ids)))
	add(checkInput(cfg.InputDir, cfg.ImageCount, cfg.ImageCountSet))
	add(checkWritable("output folder", cfg.OutputDir))
	add(checkWritable("status folder", cfg.StatusDir))
	return out, nil
}

func checkWiring() HealthCheck {
	c := HealthCheck{Name: "stage wiring", Status: checkPass}
	if err := errors.Join(locations.Validate(), structure.Validate()); err != nil {
		c.Status = checkFail
		c.Details = strings.Split(err.Error(), "\n")
		return c
	}
	g := locations.Graph()
	c.Details = []string{fmt.Sprintf("%d stages, %d artifact links", g.NodeCount(), g.EdgeCount())}
	return c
}

func checkBinaries(binDir string, binaries []string) HealthCheck {
	c := HealthCheck{Name: "binaries", Status: checkPass}
	if binDir == "" {
		c.Status = checkFail
		c.Details = []string{"binaries folder not set (--bin)"}
		return c
	}
	for _, name := range binaries {
		path := filepath.Join(binDir, name)
		info, err := os.Stat(path)
		switch {
		case err != nil:
			c.Details = append(c.Details, "missing: "+path)
		case info.IsDir():
			c.Details = append(c.Details, "not a file: "+path)
		case info.Mode().Perm()&0o111 == 0:
			c.Details = append(c.Details, "not executable: "+path)
		}
	}
	if len(c.Details) > 0 {
		c.Status = checkFail
	}
	return c
}

func checkInput(inputDir string, imageCount int, countSet bool) HealthCheck {
	c := HealthCheck{Name: "input images", Status: checkPass}
	if inputDir == "" {
		c.Status = checkFail
		c.Details = []string{"input folder not set (--input)"}
		return c
	}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		c.Status = checkFail
		c.Details = []string{err.Error()}
		return c
	}
	files := 0
	for _, e := range entries {
		if !e.IsDir() {
			files++
		}
	}
	switch {
	case files == 0:
		c.Status = checkFail
		c.Details = []string{"no files in " + inputDir}
	case countSet && imageCount != files:
		c.Status = checkWarn
		c.Details = []string{fmt.Sprintf("image count is %d but %s holds %d files", imageCount, inputDir, files)}
	default:
		c.Details = []string{fmt.Sprintf("%d files", files)}
	}
	return c
}

// checkWritable passes when dir exists as a folder, or when its nearest
// existing ancestor is a folder it could be created in.
func checkWritable(name, dir string) HealthCheck {
	c := HealthCheck{Name: name, Status: checkPass}
	if dir == "" {
		c.Status = checkWarn
		c.Details = []string{"not set"}
		return c
	}
	for p := dir; ; p = filepath.Dir(p) {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				c.Status = checkFail
				c.Details = []string{"not a folder: " + p}
			} else if p != dir {
				c.Details = []string{"will be created under " + p}
			}
			return c
		}
		if parent := filepath.Dir(p); parent == p {
			c.Status = checkFail
			c.Details = []string{"no existing parent for " + dir}
			return c
		}
	}
}

func renderDoctor(r *output.Renderer, out *DoctorOutput) {
	styles := r.Styles()

	r.Header(1, "meshflow doctor: "+string(out.OutputType))
	for _, check := range out.HealthChecks {
		icon := styles.StatusSuccess.String()
		switch check.Status {
		case checkWarn:
			icon = styles.Warning.Render("!")
		case checkFail:
			icon = styles.StatusFailed.String()
		}
		r.Println(icon + " " + check.Name)

		// Show first 5 details
		for i, detail := range check.Details {
			if i >= 5 {
				r.Muted(fmt.Sprintf("    ... and %d more", len(check.Details)-5))
				break
			}
			r.Muted("    - " + detail)
		}
	}
	r.Println("")
	if out.Failures == 0 {
		r.Success("ready to run")
	}
}
