package core

import "strings"

// Quality is the user-selected quality tier.
type Quality string

// Quality tiers.
const (
	QualityDraft  Quality = "DRAFT"
	QualityMedium Quality = "MEDIUM"
	QualityHigh   Quality = "HIGH"
)

// Qualities returns every known quality tier.
func Qualities() []Quality {
	return []Quality{QualityDraft, QualityMedium, QualityHigh}
}

// ParseQuality parses a quality tier name, ignoring case.
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToUpper(strings.TrimSpace(s)))
	switch q {
	case QualityDraft, QualityMedium, QualityHigh:
		return q, nil
	}
	return "", NewConfigError("quality", s)
}

// DatasetSize classifies a run by its number of input images.
type DatasetSize string

// Dataset size tiers.
const (
	DatasetSmall   DatasetSize = "SMALL"
	DatasetAverage DatasetSize = "AVERAGE"
	DatasetBig     DatasetSize = "BIG"
)

// Dataset size boundaries.
const (
	AverageDatasetMinImages = 30
	BigDatasetMinImages     = 150
)

// DatasetSizeFor returns the dataset size tier for n images.
func DatasetSizeFor(n int) DatasetSize {
	switch {
	case n >= BigDatasetMinImages:
		return DatasetBig
	case n >= AverageDatasetMinImages:
		return DatasetAverage
	default:
		return DatasetSmall
	}
}

// OutputType selects how far down the pipeline a run goes.
type OutputType string

// Output types, each a strict extension of the previous one.
const (
	OutputPointCloud   OutputType = "POINT_CLOUD"
	OutputMesh         OutputType = "MESH"
	OutputFilteredMesh OutputType = "FILTERED_MESH"
	OutputTexturedMesh OutputType = "TEXTURED_MESH"
)

// OutputTypes returns every output type, shortest pipeline first.
func OutputTypes() []OutputType {
	return []OutputType{OutputPointCloud, OutputMesh, OutputFilteredMesh, OutputTexturedMesh}
}

// ParseOutputType parses an output type name, ignoring case.
func ParseOutputType(s string) (OutputType, error) {
	t := OutputType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case OutputPointCloud, OutputMesh, OutputFilteredMesh, OutputTexturedMesh:
		return t, nil
	}
	return "", NewConfigError("output type", s)
}
