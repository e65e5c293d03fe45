// Package deliver locates the final artifacts of a run and, when a results
// manifest is supplied, copies them to the destinations it names.
package deliver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// Outcome is the deliverable section of a run's global report.
type Outcome struct {
	Report *core.OutputFileReport
	// ManifestApplied is true only if a manifest was read and every
	// declared deliverable was copied.
	ManifestApplied bool
	ManifestError   string
}

// SourcePath returns where the pipeline leaves a deliverable.
func SourcePath(specs locations.Specs, d core.Deliverable) (string, bool) {
	loc := func(id core.StageID, name string) string {
		p, _ := specs[id].Location(name)
		return p
	}
	texturing := loc(core.StageTexturing, "output")

	switch d {
	case core.DeliverablePointCloud:
		return filepath.Join(loc(core.StageStructureFromMotion, "extraInfoFolder"), "cloud_and_poses.ply"), true
	case core.DeliverableMesh:
		return loc(core.StageMeshing, "output"), true
	case core.DeliverableFilteredMesh:
		return loc(core.StageMeshFiltering, "output"), true
	case core.DeliverableTexturedMesh:
		return filepath.Join(texturing, "texturedMesh.obj"), true
	case core.DeliverableTexturePNG:
		return filepath.Join(texturing, "texture_0.png"), true
	case core.DeliverableTextureMTL:
		return filepath.Join(texturing, "texturedMesh.mtl"), true
	default:
		return "", false
	}
}

// existing returns path if it names a regular file.
func existing(path string) *string {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	return &path
}

// Existence reports, for every deliverable, whether it exists and where.
func Existence(specs locations.Specs) *core.OutputFileReport {
	rep := &core.OutputFileReport{Existence: make(map[core.Deliverable]core.ExistenceReport)}
	for _, d := range core.Deliverables() {
		src, _ := SourcePath(specs, d)
		loc := existing(src)
		rep.Existence[d] = core.ExistenceReport{Success: loc != nil, Location: loc}
	}
	return rep
}

// Finalize produces the deliverable report. Without a manifest it is the
// plain existence report. With one, declared deliverables are copied to
// <outputRoot>/../<location>/<name>; any failure while reading or applying
// the manifest falls back to the existence report and is recorded.
func Finalize(specs locations.Specs, outputRoot, manifestPath string, logger *slog.Logger) Outcome {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if manifestPath == "" {
		return Outcome{Report: Existence(specs)}
	}

	m, err := LoadManifest(manifestPath)
	if err == nil {
		var moved *core.OutputFileReport
		moved, err = Apply(specs, outputRoot, m)
		if err == nil {
			return Outcome{Report: moved, ManifestApplied: true}
		}
	}

	logger.Warn("results manifest not applied, reporting deliverable existence", "manifest", manifestPath, "error", err)
	return Outcome{Report: Existence(specs), ManifestError: err.Error()}
}

// Apply copies each declared deliverable. The per-deliverable report is
// always complete; the error joins every failure.
func Apply(specs locations.Specs, outputRoot string, m Manifest) (*core.OutputFileReport, error) {
	rep := &core.OutputFileReport{Moved: make(map[core.Deliverable]core.MoveReport, len(m))}
	base := filepath.Join(outputRoot, "..")

	var errs []error
	for _, d := range m.Keys() {
		target := m[d]
		src, _ := SourcePath(specs, d)
		cur := existing(src)
		mr := core.MoveReport{Exists: cur != nil, CurrentLocation: cur}

		dst := filepath.Join(base, target.Location, target.Name)
		if cur == nil {
			errs = append(errs, fmt.Errorf("%s: source %s does not exist", d, src))
		} else if err := copyFile(src, dst); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
		} else {
			mr.MoveSuccess = true
			mr.NewLocation = &dst
		}
		rep.Moved[d] = mr
	}

	if len(errs) > 0 {
		return rep, fmt.Errorf("%w: %w", ErrManifest, errors.Join(errs...))
	}
	return rep, nil
}

func copyFile(src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	in, err := os.Open(src) //nolint:gosec // source resolved from the location graph
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // destination named by the results manifest
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close destination: %w", cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
