// Package core defines the shared language of the meshflow system.
//
// This package contains:
//   - Pipeline policy enums (Quality, DatasetSize, OutputType, StageID)
//   - Stage configuration values (Options, ParameterSet, StageSpec)
//   - Live and durable run records (RunStatus, StageReport, RunMetadata)
//   - The configuration error taxonomy
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
