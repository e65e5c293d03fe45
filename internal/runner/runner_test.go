package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/meshflow/internal/testutil"
	"github.com/leapstack-labs/meshflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	calls  [][]string
	stderr string
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, argv []string, stderr io.Writer) error {
	f.calls = append(f.calls, append([]string(nil), argv...))
	if f.stderr != "" {
		_, _ = io.WriteString(stderr, f.stderr)
	}
	return f.err
}

type recordingSink struct {
	updates []core.StageState
}

func (s *recordingSink) Update(_ core.StageID, st core.StageState) {
	s.updates = append(s.updates, st)
}

func newTestRunner(t *testing.T, exec Executor) (*Runner, string) {
	t.Helper()
	logDir := filepath.Join(t.TempDir(), "log")
	return New(Config{Executor: exec, LogDir: logDir, Logger: testutil.NewTestLogger(t)}), logDir
}

func depthMapSpec(t *testing.T) core.StageSpec {
	t.Helper()
	out := filepath.Join(t.TempDir(), "depth_map")
	return core.StageSpec{
		ID:        core.StageDepthMap,
		Binary:    "/bin/aliceVision_depthMapEstimation",
		OutputDir: out,
		Locations: []core.Location{
			{Name: "ini", Path: "/out/prepare_dense_scene/mvs.ini"},
			{Name: "output", Path: out},
		},
	}
}

func TestRanges(t *testing.T) {
	tests := []struct {
		n, size int
		want    []Range
	}{
		{n: 7, size: 3, want: []Range{{0, 3}, {3, 3}, {6, 1}}},
		{n: 6, size: 3, want: []Range{{0, 3}, {3, 3}}},
		{n: 1, size: 3, want: []Range{{0, 1}}},
		{n: 0, size: 3, want: nil},
		{n: -2, size: 3, want: nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, Ranges(tt.n, tt.size))
		})
	}
}

func TestCommandLine(t *testing.T) {
	spec := core.StageSpec{
		Binary: "/bin/aliceVision_meshFiltering",
		Locations: []core.Location{
			{Name: "input", Path: "/out/meshing/mesh.obj"},
			{Name: "output", Path: "/out/mesh_filtering/filtered_mesh.obj"},
		},
	}
	opts := core.Options{{Name: "verboseLevel", Value: "info"}, {Name: core.GroupSizeOption, Value: "3"}, {Name: "keepLargestMeshOnly", Value: "True"}}

	assert.Equal(t, []string{
		"/bin/aliceVision_meshFiltering",
		"--input", "/out/meshing/mesh.obj",
		"--output", "/out/mesh_filtering/filtered_mesh.obj",
		"--verboseLevel", "info",
		"--keepLargestMeshOnly", "True",
	}, CommandLine(spec, opts))
}

func TestRun_DepthMapChunks(t *testing.T) {
	exec := &fakeExecutor{}
	r, _ := newTestRunner(t, exec)
	sink := &recordingSink{}
	spec := depthMapSpec(t)
	opts := core.Options{{Name: "verboseLevel", Value: "info"}, {Name: core.GroupSizeOption, Value: "3"}}

	res := r.Run(context.Background(), spec, opts, sink, 7)

	assert.Equal(t, 3, res.Invocations)
	assert.Zero(t, res.Failed)
	require.Len(t, exec.calls, 3)

	base := CommandLine(spec, opts)
	assert.Equal(t, append(append([]string(nil), base...), "--rangeStart", "0", "--rangeSize", "3"), exec.calls[0])
	assert.Equal(t, append(append([]string(nil), base...), "--rangeStart", "3", "--rangeSize", "3"), exec.calls[1])
	assert.Equal(t, append(append([]string(nil), base...), "--rangeStart", "6", "--rangeSize", "1"), exec.calls[2])
	for _, call := range exec.calls {
		assert.NotContains(t, call, "--groupSize")
	}

	require.Len(t, sink.updates, 5)
	assert.Equal(t, core.StageState{Status: core.StatusInProgress, Progress: 0}, sink.updates[0])
	assert.InDelta(t, 33.33, sink.updates[1].Progress, 0.01)
	assert.InDelta(t, 66.67, sink.updates[2].Progress, 0.01)
	assert.InDelta(t, 100, sink.updates[3].Progress, 0.001)
	assert.Equal(t, core.StageState{Status: core.StatusDone, Progress: 100}, sink.updates[4])
	assert.DirExists(t, spec.OutputDir)
}

func TestRun_DepthMapNoImages(t *testing.T) {
	exec := &fakeExecutor{}
	r, _ := newTestRunner(t, exec)
	sink := &recordingSink{}

	res := r.Run(context.Background(), depthMapSpec(t), core.Options{{Name: core.GroupSizeOption, Value: "3"}}, sink, 0)

	assert.Zero(t, res.Invocations)
	assert.Empty(t, exec.calls)
	assert.Equal(t, []core.StageState{
		{Status: core.StatusInProgress, Progress: 0},
		{Status: core.StatusDone, Progress: 100},
	}, sink.updates)
}

func TestRun_InvalidGroupSizeFallsBack(t *testing.T) {
	for _, raw := range []string{"zero", "0", "-4"} {
		t.Run(raw, func(t *testing.T) {
			exec := &fakeExecutor{}
			r, _ := newTestRunner(t, exec)

			r.Run(context.Background(), depthMapSpec(t), core.Options{{Name: core.GroupSizeOption, Value: raw}}, &recordingSink{}, 7)

			assert.Len(t, exec.calls, 3)
		})
	}
}

func TestRun_SingleInvocation(t *testing.T) {
	exec := &fakeExecutor{}
	r, _ := newTestRunner(t, exec)
	sink := &recordingSink{}
	out := filepath.Join(t.TempDir(), "meshing")
	spec := core.StageSpec{ID: core.StageMeshing, Binary: "/bin/aliceVision_meshing", OutputDir: out}

	res := r.Run(context.Background(), spec, nil, sink, 200)

	assert.Equal(t, 1, res.Invocations)
	assert.Equal(t, [][]string{{"/bin/aliceVision_meshing"}}, exec.calls)
	assert.Equal(t, []core.StageState{
		{Status: core.StatusInProgress, Progress: 0},
		{Status: core.StatusInProgress, Progress: 100},
		{Status: core.StatusDone, Progress: 100},
	}, sink.updates)
}

func TestRun_CapturesStderr(t *testing.T) {
	exec := &fakeExecutor{stderr: "[warning] few features\n"}
	r, logDir := newTestRunner(t, exec)
	spec := core.StageSpec{ID: core.StageCameraInit, Binary: "/bin/aliceVision_cameraInit", OutputDir: filepath.Join(t.TempDir(), "camera_init")}

	r.Run(context.Background(), spec, nil, &recordingSink{}, 5)

	data, err := os.ReadFile(filepath.Join(logDir, "camera_init_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "[warning] few features\n", string(data))
}

func TestRun_LogTruncatedPerRun(t *testing.T) {
	exec := &fakeExecutor{stderr: "line\n"}
	r, logDir := newTestRunner(t, exec)
	spec := core.StageSpec{ID: core.StageMeshing, Binary: "/bin/aliceVision_meshing", OutputDir: filepath.Join(t.TempDir(), "meshing")}

	r.Run(context.Background(), spec, nil, &recordingSink{}, 5)
	r.Run(context.Background(), spec, nil, &recordingSink{}, 5)

	data, err := os.ReadFile(filepath.Join(logDir, "meshing_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestRun_FailureIsNotFatal(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("exit status 1")}
	r, _ := newTestRunner(t, exec)
	sink := &recordingSink{}

	res := r.Run(context.Background(), depthMapSpec(t), core.Options{{Name: core.GroupSizeOption, Value: "2"}}, sink, 4)

	assert.Equal(t, 2, res.Invocations)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, core.StageState{Status: core.StatusDone, Progress: 100}, sink.updates[len(sink.updates)-1])
}

func TestRun_CanceledContext(t *testing.T) {
	exec := &fakeExecutor{}
	r, _ := newTestRunner(t, exec)
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Run(ctx, depthMapSpec(t), nil, sink, 9)

	assert.True(t, res.Canceled)
	assert.Empty(t, exec.calls)
	assert.Equal(t, core.StatusDone, sink.updates[len(sink.updates)-1].Status)
}

func TestExecExecutor_EmptyArgv(t *testing.T) {
	err := ExecExecutor{}.Execute(context.Background(), nil, io.Discard)
	require.Error(t, err)
	assert.Equal(t, -1, exitCode(err))
}
