package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/meshflow/internal/testutil"
	"github.com/leapstack-labs/meshflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCheckPath(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "mesh.obj")
	writeFile(t, file, "v 0 0 0\n")

	nested := filepath.Join(root, "nested")
	writeFile(t, filepath.Join(nested, "a", "b", "depth.exr"), "x")

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(filepath.Join(empty, "sub"), 0o750))

	tests := []struct {
		name string
		path string
		want core.LocationCheck
	}{
		{"regular file", file, core.LocationFound},
		{"dir with nested file", nested, core.LocationNotEmpty},
		{"dir without files", empty, core.LocationEmpty},
		{"missing", filepath.Join(root, "missing"), core.LocationNoSuchPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckPath(tt.path))
		})
	}
}

func TestScanLog(t *testing.T) {
	log := strings.Join([]string{
		"[info] starting\n",
		"[warning] few matches\n",
		"[error] bad view\r\n",
		"[fatal] giving up\n",
		"[warning] and [error] together\n",
		"last line without newline [fatal]",
	}, "")

	rep, err := ScanLog(strings.NewReader(log))
	require.NoError(t, err)

	assert.True(t, rep.LogFilePresent)
	assert.Equal(t, []string{"[warning] few matches\n", "[warning] and [error] together\n"}, rep.WarningLines)
	assert.Equal(t, []string{"[error] bad view\r\n", "[warning] and [error] together\n"}, rep.ErrorLines)
	assert.Equal(t, []string{"[fatal] giving up\n", "last line without newline [fatal]"}, rep.FatalLines)
}

func TestCollect_MissingLog(t *testing.T) {
	c := NewCollector(t.TempDir(), testutil.NewTestLogger(t))

	rep := c.Collect(core.StageSpec{ID: core.StageMeshing})

	assert.False(t, rep.LogReport.LogFilePresent)
	assert.Empty(t, rep.LogReport.WarningLines)
	assert.NotNil(t, rep.LogReport.WarningLines)
	assert.True(t, rep.Success, "no locations means nothing failed")
}

func TestCollect_Success(t *testing.T) {
	root := t.TempDir()
	logDir := filepath.Join(root, "log")
	writeFile(t, filepath.Join(logDir, "mesh_filtering_log.txt"), "[warning] holes\n")

	in := filepath.Join(root, "meshing", "mesh.obj")
	out := filepath.Join(root, "mesh_filtering", "filtered_mesh.obj")
	writeFile(t, in, "v")
	writeFile(t, out, "v")

	spec := core.StageSpec{
		ID: core.StageMeshFiltering,
		Locations: []core.Location{
			{Name: "input", Path: in},
			{Name: "output", Path: out},
		},
	}
	rep := NewCollector(logDir, testutil.NewTestLogger(t)).Collect(spec)

	assert.True(t, rep.Success)
	assert.True(t, rep.LogReport.LogFilePresent)
	assert.Equal(t, []string{"[warning] holes\n"}, rep.LogReport.WarningLines)
	assert.Equal(t, map[string]core.LocationCheck{
		in:  core.LocationFound,
		out: core.LocationFound,
	}, rep.LocationsReport)
}

func TestCollect_EmptyOutputDirFails(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "feature_extraction")
	require.NoError(t, os.MkdirAll(out, 0o750))
	in := filepath.Join(root, "camera_init", "camera.sfm")
	writeFile(t, in, "{}")

	spec := core.StageSpec{
		ID: core.StageFeatureExtraction,
		Locations: []core.Location{
			{Name: "input", Path: in},
			{Name: "output", Path: out},
		},
	}
	rep := NewCollector(root, nil).Collect(spec)

	assert.False(t, rep.Success)
	assert.Equal(t, core.LocationEmpty, rep.LocationsReport[out])
}

func TestCheckLocations_CameraConnection(t *testing.T) {
	root := t.TempDir()
	pds := filepath.Join(root, "prepare_dense_scene")
	ini := filepath.Join(pds, "mvs.ini")
	writeFile(t, ini, "[global]\n")

	spec := core.StageSpec{
		ID:        core.StageCameraConnection,
		Locations: []core.Location{{Name: "ini", Path: ini}},
	}

	checks, ok := CheckLocations(spec)
	assert.False(t, ok)
	assert.Equal(t, core.BinFilesMissing, checks[core.BinFilesKey])
	assert.Equal(t, core.LocationFound, checks[ini])

	writeFile(t, filepath.Join(pds, "cams", "00001_P.bin"), "bin")

	checks, ok = CheckLocations(spec)
	assert.True(t, ok)
	assert.Equal(t, core.BinFilesFound, checks[core.BinFilesKey])
}

func TestCheckLocations_CameraConnectionWithoutIni(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "stray.bin"), "bin")
	t.Chdir(cwd)

	checks, ok := CheckLocations(core.StageSpec{ID: core.StageCameraConnection})
	assert.False(t, ok)
	assert.Equal(t, core.BinFilesMissing, checks[core.BinFilesKey], "the working directory is never searched")
}

func TestCheckLocations_OtherStagesSkipBinCheck(t *testing.T) {
	checks, ok := CheckLocations(core.StageSpec{ID: core.StageDepthMap})
	assert.True(t, ok)
	assert.NotContains(t, checks, core.BinFilesKey)
}
