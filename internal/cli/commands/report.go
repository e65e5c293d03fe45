package commands

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/status"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [path]",
		Short: "Summarize the metadata of a run",
		Long: `Summarize a metadata.json file: the verification result of every stage,
the problems found in failed stages and the state of the deliverables.

The path may name the file or the folder that holds it; without a path the
configured metadata folder (or status folder) is used.`,
		Example: `  meshflow report ./out
  meshflow report ./out/metadata.json --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReport,
	}
	cmd.Flags().String("metadata", "", "Folder holding metadata.json")
	cmd.Flags().String("status", "", "Folder holding status.json, used when --metadata is not set")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	dir := cc.Cfg.MetadataDirOrDefault()
	if len(args) > 0 {
		dir = args[0]
	}
	path, err := resolveReportFile(dir, status.MetadataFileName, "--metadata")
	if err != nil {
		return err
	}
	meta, err := status.ReadMetadata(path)
	if err != nil {
		return err
	}
	return renderReport(cc.Renderer, meta)
}

func renderReport(r *output.Renderer, meta *core.RunMetadata) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(meta)
	case output.ModeYAML:
		return r.YAML(meta)
	}

	ids := reportedStages(meta)
	r.Header(1, fmt.Sprintf("Run report: %d/%d stages succeeded", meta.SucceededStages(), len(ids)))

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rec := meta.StepByStepReport[id]
		result := "ok"
		if !rec.Report.Success {
			result = "FAILED"
		}
		lr := rec.Report.LogReport
		rows = append(rows, []string{
			stageTitle(id),
			result,
			fmt.Sprintf("%.1fs", rec.TimeTaken),
			fmt.Sprint(len(lr.WarningLines)),
			fmt.Sprint(len(lr.ErrorLines)),
			fmt.Sprint(len(lr.FatalLines)),
		})
	}
	r.Table([]string{"Stage", "Result", "Time", "Warnings", "Errors", "Fatal"}, rows)

	for _, id := range ids {
		rep := meta.StepByStepReport[id].Report
		if rep.Success {
			continue
		}
		r.Println("")
		r.Header(2, stageTitle(id)+" problems")
		if !rep.LogReport.LogFilePresent {
			r.StatusLine("log file", "failed", "missing")
		}
		for _, path := range slices.Sorted(maps.Keys(rep.LocationsReport)) {
			check := rep.LocationsReport[path]
			if check == core.LocationFound || check == core.LocationNotEmpty || check == core.BinFilesFound {
				continue
			}
			r.StatusLine(path, "failed", string(check))
		}
		for _, line := range rep.LogReport.FatalLines {
			r.StatusLine(strings.TrimRight(line, "\r\n"), "failed", "")
		}
		for _, line := range rep.LogReport.ErrorLines {
			r.StatusLine(strings.TrimRight(line, "\r\n"), "failed", "")
		}
	}

	g := meta.GlobalReport
	r.Println("")
	r.Header(2, "Deliverables")
	r.Printf("Total time: %.1fs\n", g.TimeTaken)
	if g.ManifestError != "" {
		r.Warning("results manifest not applied: " + g.ManifestError)
	}
	if g.OutputFileReport == nil {
		r.Muted("not reported")
		return nil
	}
	r.Table(deliverableHeader(g.OutputFileReport), deliverableRows(g.OutputFileReport))
	return nil
}

// reportedStages returns the stages in the report in pipeline order.
func reportedStages(meta *core.RunMetadata) []core.StageID {
	var ids []core.StageID
	for _, id := range core.AllStages() {
		if _, ok := meta.StepByStepReport[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func deliverableHeader(rep *core.OutputFileReport) []string {
	if rep.Moved != nil {
		return []string{"Deliverable", "Exists", "Moved", "Location"}
	}
	return []string{"Deliverable", "Exists", "Location"}
}

func deliverableRows(rep *core.OutputFileReport) [][]string {
	deref := func(p *string) string {
		if p == nil {
			return "-"
		}
		return *p
	}
	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	var rows [][]string
	for _, d := range core.Deliverables() {
		if rep.Moved != nil {
			m, ok := rep.Moved[d]
			if !ok {
				continue
			}
			loc := m.CurrentLocation
			if m.MoveSuccess {
				loc = m.NewLocation
			}
			rows = append(rows, []string{string(d), yesNo(m.Exists), yesNo(m.MoveSuccess), deref(loc)})
			continue
		}
		e, ok := rep.Existence[d]
		if !ok {
			continue
		}
		rows = append(rows, []string{string(d), yesNo(e.Success), deref(e.Location)})
	}
	return rows
}
