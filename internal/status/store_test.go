package status

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/meshflow/internal/testutil"
	"github.com/leapstack-labs/meshflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusStore_ImplementsSink(t *testing.T) {
	var _ core.StatusSink = (*StatusStore)(nil)
}

func TestStatusStore_Update(t *testing.T) {
	dir := t.TempDir()
	s := NewStatusStore(dir, testutil.NewTestLogger(t))
	s.Init()

	st, err := ReadStatus(s.Path())
	require.NoError(t, err)
	assert.Empty(t, st)

	s.Update(core.StageCameraInit, core.StageState{Status: core.StatusDone, Progress: 100})
	s.Update(core.StageDepthMap, core.StageState{Status: core.StatusInProgress, Progress: 50})

	st, err = ReadStatus(filepath.Join(dir, StatusFileName))
	require.NoError(t, err)
	assert.Equal(t, core.RunStatus{
		core.StageCameraInit: {Status: core.StatusDone, Progress: 100},
		core.StageDepthMap:   {Status: core.StatusInProgress, Progress: 50},
	}, st)
	assert.Equal(t, st, s.Snapshot())
}

func TestStatusStore_ByteIdentical(t *testing.T) {
	dir := t.TempDir()
	s := NewStatusStore(dir, nil)

	s.Update(core.StageMeshing, core.StageState{Status: core.StatusInProgress, Progress: 0})
	s.Update(core.StageCameraInit, core.StageState{Status: core.StatusDone, Progress: 100})
	first, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	s.Update(core.StageCameraInit, core.StageState{Status: core.StatusDone, Progress: 100})
	second, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"status": "in progress"`)
}

func TestStatusStore_UnwritableLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := NewStatusStore(filepath.Join(t.TempDir(), "missing", "dir"), logger)

	s.Update(core.StageCameraInit, core.StageState{Status: core.StatusInProgress})

	assert.Contains(t, buf.String(), "failed to write status file")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Len(t, s.Snapshot(), 1)
}

func TestMetadataStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewMetadataStore(dir, testutil.NewTestLogger(t))

	meta := core.NewRunMetadata()
	meta.GlobalReport.TimeTaken = 12.5
	meta.StepByStepReport[core.StageMeshing] = core.StageRecord{
		TimeTaken: 3,
		Report: core.StageReport{
			Success: true,
			LogReport: core.LogReport{
				LogFilePresent: true,
				WarningLines:   []string{"[warning] x"},
				ErrorLines:     []string{},
				FatalLines:     []string{},
			},
			LocationsReport: map[string]core.LocationCheck{"/out/meshing/mesh.obj": core.LocationFound},
		},
	}
	m.Write(meta)

	got, err := ReadMetadata(m.Path())
	require.NoError(t, err)
	assert.Equal(t, meta, got)
	assert.Equal(t, 1, got.SucceededStages())
}

func TestReadStatus_Errors(t *testing.T) {
	_, err := ReadStatus(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), StatusFileName)
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = ReadStatus(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestWriteJSON_WrapsPersistenceError(t *testing.T) {
	err := writeJSON(filepath.Join(t.TempDir(), "missing", "x.json"), map[string]int{})
	require.ErrorIs(t, err, ErrPersistence)
}
