// Package params resolves the per-stage options for a quality tier and
// dataset size.
//
// Every table is produced by a builder function, so each resolution works on
// freshly built values and can never leak changes into another tier.
package params

import (
	"fmt"
	"maps"
	"slices"

	"github.com/leapstack-labs/meshflow/pkg/core"
)

// table is the mutable working form used while a parameter set is built.
type table map[core.StageID]core.Options

func (t table) set(id core.StageID, name, value string) {
	t[id] = t[id].With(name, value)
}

// Resolve returns the parameter set for quality q and dataset size size.
func Resolve(q core.Quality, size core.DatasetSize) (core.ParameterSet, error) {
	base, ok := qualityBuilders[q]
	if !ok {
		return core.ParameterSet{}, core.NewConfigError("quality", string(q))
	}
	t := base()

	switch size {
	case core.DatasetSmall, core.DatasetAverage:
		t.set(core.StageFeatureExtraction, "describerPreset", "high")
	case core.DatasetBig:
		t.set(core.StageFeatureExtraction, "describerPreset", "normal")
	default:
		return core.ParameterSet{}, core.NewConfigError("dataset size", string(size))
	}

	return core.NewParameterSet(q, size, t), nil
}

// ResolveForImages classifies imageCount and resolves the matching set.
func ResolveForImages(q core.Quality, imageCount int) (core.ParameterSet, error) {
	return Resolve(q, core.DatasetSizeFor(imageCount))
}

// ApplyOverrides returns a copy of set with user-supplied option values.
// Overrides naming an unknown stage are rejected. New options are appended
// in name order so the resulting command lines stay deterministic.
func ApplyOverrides(set core.ParameterSet, overrides map[string]map[string]string) (core.ParameterSet, error) {
	out := set
	for _, stage := range slices.Sorted(maps.Keys(overrides)) {
		id, err := core.ParseStageID(stage)
		if err != nil {
			return core.ParameterSet{}, fmt.Errorf("parameter override: %w", err)
		}
		stageOpts := overrides[stage]
		for _, name := range slices.Sorted(maps.Keys(stageOpts)) {
			out = out.WithOption(id, name, stageOpts[name])
		}
	}
	return out, nil
}

var qualityBuilders = map[core.Quality]func() table{
	core.QualityDraft:  draft,
	core.QualityMedium: medium,
	core.QualityHigh:   high,
}

func draft() table {
	t := medium()
	t.set(core.StageDepthMap, "downscale", "16")
	t.set(core.StageMeshing, "maxPoints", "50000")
	t.set(core.StageMeshFiltering, "keepLargestMeshOnly", "False")
	t.set(core.StageTexturing, "downscale", "8")
	return t
}

func high() table {
	t := medium()
	t.set(core.StageDepthMap, "downscale", "1")
	t.set(core.StageTexturing, "downscale", "1")
	return t
}

// opts builds an option list from name/value pairs.
func opts(pairs ...string) core.Options {
	o := make(core.Options, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		o = append(o, core.Option{Name: pairs[i], Value: pairs[i+1]})
	}
	return o
}

func medium() table {
	return table{
		core.StageCameraInit: opts(
			"sensorDatabase", "",
			"defaultFieldOfView", "45.0",
			"verboseLevel", "debug",
			"allowSingleView", "1",
		),
		core.StageFeatureExtraction: opts(
			"describerTypes", "sift",
			"describerPreset", "normal",
			"forceCpuExtraction", "True",
			"verboseLevel", "debug",
			"rangeStart", "-1",
			"rangeSize", "1",
		),
		core.StageImageMatching: opts(
			"tree", `""`,
			"weights", `""`,
			"minNbImages", "200",
			"maxDescriptors", "500",
			"nbMatches", "50",
			"verboseLevel", "debug",
		),
		core.StageFeatureMatching: opts(
			"describerTypes", "sift",
			"photometricMatchingMethod", "ANN_L2",
			"geometricEstimator", "acransac",
			"geometricFilterType", "fundamental_matrix",
			"distanceRatio", "0.8",
			"maxIteration", "2048",
			"maxMatches", "0",
			"savePutativeMatches", "False",
			"guidedMatching", "False",
			"exportDebugFiles", "False",
			"verboseLevel", "debug",
			"rangeStart", "-1",
			"rangeSize", "0",
		),
		core.StageStructureFromMotion: opts(
			"describerTypes", "sift",
			"localizerEstimator", "acransac",
			"lockScenePreviouslyReconstructed", "False",
			"useLocalBA", "True",
			"localBAGraphDistance", "1",
			"maxNumberOfMatches", "0",
			"minInputTrackLength", "2",
			"minNumberOfObservationsForTriangulation", "2",
			"minAngleForTriangulation", "3.0",
			"minAngleForLandmark", "2.0",
			"maxReprojectionError", "4.0",
			"minAngleInitialPair", "5.0",
			"maxAngleInitialPair", "40.0",
			"useOnlyMatchesFromInputFolder", "False",
			"initialPairA", "",
			"initialPairB", "",
			"interFileExtension", ".ply",
			"verboseLevel", "debug",
		),
		core.StagePrepareDenseScene: opts(
			"verboseLevel", "debug",
		),
		core.StageCameraConnection: opts(
			"verboseLevel", "debug",
		),
		core.StageDepthMap: opts(
			"downscale", "2",
			"sgmMaxTCams", "10",
			"sgmWSH", "4",
			"sgmGammaC", "5.5",
			"sgmGammaP", "8.0",
			"refineNSamplesHalf", "150",
			"refineNDepthsToRefine", "31",
			"refineNiters", "100",
			"refineWSH", "10",
			"refineMaxTCams", "6",
			"refineSigma", "15",
			"refineGammaC", "15.5",
			"refineGammaP", "8.0",
			"refineUseTcOrRcPixSize", "False",
			"verboseLevel", "debug",
			core.GroupSizeOption, "3",
		),
		core.StageDepthMapFilter: opts(
			"nNearestCams", "10",
			"minNumOfConsistensCams", "3",
			"minNumOfConsistensCamsWithLowSimilarity", "4",
			"pixSizeBall", "0",
			"pixSizeBallWithLowSimilarity", "0",
			"verboseLevel", "debug",
			"rangeStart", "-1",
			"rangeSize", "-1",
		),
		core.StageMeshing: opts(
			"maxInputPoints", "50000000",
			"maxPoints", "5000000",
			"maxPointsPerVoxel", "1000000",
			"minStep", "2",
			"partitioning", "singleBlock",
			"repartition", "multiResolution",
			"angleFactor", "15.0",
			"simFactor", "15.0",
			"pixSizeMarginInitCoef", "2.0",
			"pixSizeMarginFinalCoef", "4.0",
			"voteMarginFactor", "4.0",
			"contributeMarginFactor", "2.0",
			"simGaussianSizeInit", "10",
			"simGaussianSize", "10.0",
			"minAngleThreshold", "1.0",
			"refineFuse", "True",
			"verboseLevel", "debug",
		),
		core.StageMeshFiltering: opts(
			"removeLargeTrianglesFactor", "60.0",
			"keepLargestMeshOnly", "True",
			"iterations", "5",
			"lambda", "1.0",
			"verboseLevel", "debug",
		),
		core.StageTexturing: opts(
			"textureSide", "8192",
			"downscale", "2",
			"outputTextureFileType", "png",
			"unwrapMethod", "Basic",
			"fillHoles", "False",
			"padding", "15",
			"maxNbImagesForFusion", "3",
			"bestScoreThreshold", "0.0",
			"angleHardThreshold", "90.0",
			"forceVisibleByAllVertices", "False",
			"flipNormals", "False",
			"visibilityRemappingMethod", "PullPush",
			"verboseLevel", "debug",
		),
	}
}
