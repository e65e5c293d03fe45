// Package locations derives every stage's binary, output directory and
// artifact paths from a run layout.
//
// The wiring is an explicit table: each stage lists named bindings, and a
// binding is either the external image folder, an artifact the stage owns,
// or a reference to a named artifact of an upstream stage. Building specs
// never touches the filesystem.
package locations

import "github.com/leapstack-labs/meshflow/pkg/core"

// DirKey in a reference points at the upstream stage's output directory
// instead of one of its named locations.
const DirKey = ""

type bindingKind int

const (
	bindImageFolder bindingKind = iota
	bindOwned
	bindUpstream
)

type binding struct {
	name string
	kind bindingKind

	// rel is the owned path relative to the stage directory; empty means
	// the directory itself.
	rel string

	from core.StageID
	key  string
	join string
}

type stageRecord struct {
	binary   string
	dir      string
	bindings []binding
}

func images(name string) binding {
	return binding{name: name, kind: bindImageFolder}
}

func owned(name, rel string) binding {
	return binding{name: name, kind: bindOwned, rel: rel}
}

func ref(name string, from core.StageID, key string) binding {
	return binding{name: name, kind: bindUpstream, from: from, key: key}
}

func refJoin(name string, from core.StageID, key, join string) binding {
	return binding{name: name, kind: bindUpstream, from: from, key: key, join: join}
}

// mvsIni is the dense scene configuration every depth stage reads.
func mvsIni() binding {
	return refJoin("ini", core.StagePrepareDenseScene, "output", "mvs.ini")
}

var stages = map[core.StageID]stageRecord{
	core.StageCameraInit: {
		binary: "aliceVision_cameraInit",
		dir:    "camera_init",
		bindings: []binding{
			images("imageFolder"),
			owned("output", "camera.sfm"),
		},
	},
	core.StageFeatureExtraction: {
		binary: "aliceVision_featureExtraction",
		dir:    "feature_extraction",
		bindings: []binding{
			ref("input", core.StageCameraInit, "output"),
			owned("output", ""),
		},
	},
	core.StageImageMatching: {
		binary: "aliceVision_imageMatching",
		dir:    "image_matching",
		bindings: []binding{
			ref("input", core.StageCameraInit, "output"),
			ref("featuresFolder", core.StageFeatureExtraction, "output"),
			owned("output", "image_matches.txt"),
		},
	},
	core.StageFeatureMatching: {
		binary: "aliceVision_featureMatching",
		dir:    "feature_matching",
		bindings: []binding{
			ref("input", core.StageCameraInit, "output"),
			ref("featuresFolders", core.StageFeatureExtraction, "output"),
			ref("imagePairsList", core.StageImageMatching, "output"),
			owned("output", ""),
		},
	},
	core.StageStructureFromMotion: {
		binary: "aliceVision_incrementalSfM",
		dir:    "structure_from_motion",
		bindings: []binding{
			ref("input", core.StageCameraInit, "output"),
			ref("featuresFolders", core.StageFeatureExtraction, "output"),
			ref("matchesFolders", core.StageFeatureMatching, "output"),
			owned("outputViewsAndPoses", "cameras.sfm"),
			owned("extraInfoFolder", "extra_info"),
			owned("output", "bundle.sfm"),
		},
	},
	core.StagePrepareDenseScene: {
		binary: "aliceVision_prepareDenseScene",
		dir:    "prepare_dense_scene",
		bindings: []binding{
			ref("input", core.StageStructureFromMotion, "output"),
			owned("output", ""),
		},
	},
	core.StageCameraConnection: {
		binary: "aliceVision_cameraConnection",
		dir:    "camera_connection",
		bindings: []binding{
			mvsIni(),
		},
	},
	core.StageDepthMap: {
		binary: "aliceVision_depthMapEstimation",
		dir:    "depth_map",
		bindings: []binding{
			mvsIni(),
			owned("output", ""),
		},
	},
	core.StageDepthMapFilter: {
		binary: "aliceVision_depthMapFiltering",
		dir:    "depth_map_filter",
		bindings: []binding{
			mvsIni(),
			ref("depthMapFolder", core.StageDepthMap, "output"),
			owned("output", ""),
		},
	},
	core.StageMeshing: {
		binary: "aliceVision_meshing",
		dir:    "meshing",
		bindings: []binding{
			mvsIni(),
			ref("depthMapFolder", core.StageDepthMap, "output"),
			ref("depthMapFilterFolder", core.StageDepthMapFilter, "output"),
			owned("output", "mesh.obj"),
		},
	},
	core.StageMeshFiltering: {
		binary: "aliceVision_meshFiltering",
		dir:    "mesh_filtering",
		bindings: []binding{
			ref("input", core.StageMeshing, "output"),
			owned("output", "filtered_mesh.obj"),
		},
	},
	core.StageTexturing: {
		binary: "aliceVision_texturing",
		dir:    "texturing",
		bindings: []binding{
			mvsIni(),
			ref("inputMesh", core.StageMeshFiltering, "output"),
			refJoin("inputDenseReconstruction", core.StageMeshing, DirKey, "denseReconstruction.bin"),
			owned("output", ""),
		},
	},
}
