package core

// StageStatus is the live execution state of a stage.
type StageStatus string

// Stage status values as written to the status store.
const (
	StatusInProgress StageStatus = "in progress"
	StatusDone       StageStatus = "done"
)

// StageState is one entry of the status store.
type StageState struct {
	Status   StageStatus `json:"status"`
	Progress float64     `json:"progress"`
}

// RunStatus maps each started stage to its state. A stage missing from the
// map has not started yet.
type RunStatus map[StageID]StageState

// StatusSink receives stage state changes from the runner.
type StatusSink interface {
	Update(id StageID, state StageState)
}

// LocationCheck is the verification outcome for one declared path.
type LocationCheck string

// Location check outcomes.
const (
	LocationFound      LocationCheck = "Found"
	LocationNotEmpty   LocationCheck = "Not empty"
	LocationEmpty      LocationCheck = "Empty"
	LocationNoSuchPath LocationCheck = "No such path"
	BinFilesFound      LocationCheck = ".bin files found"
	BinFilesMissing    LocationCheck = "No .bin files"
)

// BinFilesKey is the locations_report key of the camera connection sub-check.
const BinFilesKey = ".bin_files"

// LogReport summarizes the severity-tagged lines of a stage log.
type LogReport struct {
	LogFilePresent bool     `json:"log_file_present"`
	WarningLines   []string `json:"warning_lines"`
	ErrorLines     []string `json:"error_lines"`
	FatalLines     []string `json:"fatal_lines"`
}

// StageReport is the post-execution verification of one stage.
type StageReport struct {
	Success         bool                     `json:"success"`
	LogReport       LogReport                `json:"log_report"`
	LocationsReport map[string]LocationCheck `json:"locations_report"`
}

// StageRecord is one entry of the step-by-step report.
type StageRecord struct {
	TimeTaken float64     `json:"time_taken"`
	Report    StageReport `json:"report"`
}

// GlobalReport summarizes a whole run.
type GlobalReport struct {
	TimeTaken        float64           `json:"time_taken"`
	ResultsJSONFile  bool              `json:"results_json_file"`
	ManifestError    string            `json:"manifest_error,omitempty"`
	OutputFileReport *OutputFileReport `json:"output_file_report,omitempty"`
}

// RunMetadata is the durable report of a run, built stage by stage.
type RunMetadata struct {
	GlobalReport     GlobalReport            `json:"global_report"`
	StepByStepReport map[StageID]StageRecord `json:"step_by_step_report"`
}

// NewRunMetadata returns empty metadata ready for the first stage.
func NewRunMetadata() *RunMetadata {
	return &RunMetadata{StepByStepReport: make(map[StageID]StageRecord)}
}

// SucceededStages counts stages whose report marks success.
func (m *RunMetadata) SucceededStages() int {
	n := 0
	for _, rec := range m.StepByStepReport {
		if rec.Report.Success {
			n++
		}
	}
	return n
}
