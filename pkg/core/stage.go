package core

// StageID identifies one stage of the pipeline.
type StageID string

// Pipeline stages.
const (
	StageCameraInit          StageID = "camera_init"
	StageFeatureExtraction   StageID = "feature_extraction"
	StageImageMatching       StageID = "image_matching"
	StageFeatureMatching     StageID = "feature_matching"
	StageStructureFromMotion StageID = "structure_from_motion"
	StagePrepareDenseScene   StageID = "prepare_dense_scene"
	StageCameraConnection    StageID = "camera_connection"
	StageDepthMap            StageID = "depth_map"
	StageDepthMapFilter      StageID = "depth_map_filter"
	StageMeshing             StageID = "meshing"
	StageMeshFiltering       StageID = "mesh_filtering"
	StageTexturing           StageID = "texturing"
)

// AllStages returns the full pipeline in execution order.
func AllStages() []StageID {
	return []StageID{
		StageCameraInit,
		StageFeatureExtraction,
		StageImageMatching,
		StageFeatureMatching,
		StageStructureFromMotion,
		StagePrepareDenseScene,
		StageCameraConnection,
		StageDepthMap,
		StageDepthMapFilter,
		StageMeshing,
		StageMeshFiltering,
		StageTexturing,
	}
}

// ParseStageID validates a stage identifier.
func ParseStageID(s string) (StageID, error) {
	for _, id := range AllStages() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", NewConfigError("stage", s)
}

// Location is one named artifact path bound into a stage invocation.
type Location struct {
	Name string
	Path string
}

// StageSpec describes how to invoke a stage and where its artifacts live.
// Specs are computed by the location graph and read by the runner and the
// report collector.
type StageSpec struct {
	ID        StageID
	Binary    string
	OutputDir string
	Locations []Location
}

// Location returns the path bound to name.
func (s StageSpec) Location(name string) (string, bool) {
	for _, l := range s.Locations {
		if l.Name == name {
			return l.Path, true
		}
	}
	return "", false
}
