package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/meshflow/internal/state"
	"github.com/leapstack-labs/meshflow/internal/status"
	"github.com/leapstack-labs/meshflow/internal/testutil"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// =============================================================================
// Test Setup Helpers
// =============================================================================

type fixture struct {
	server    *Server
	statusDir string
	history   *state.SQLiteStore
}

func setupServer(t *testing.T, withHistory bool) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg := Config{StatusDir: dir, Logger: testutil.NewTestLogger(t)}

	f := &fixture{statusDir: dir}
	if withHistory {
		store := state.NewSQLiteStore(nil)
		require.NoError(t, store.Open(":memory:"))
		t.Cleanup(func() { _ = store.Close() })
		cfg.History = store
		f.history = store
	}
	f.server = NewServer(cfg)
	return f
}

func (f *fixture) writeStatus(t *testing.T, st core.RunStatus) {
	t.Helper()
	s := status.NewStatusStore(f.statusDir, nil)
	for id, v := range st {
		s.Update(id, v)
	}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// JSON endpoints
// =============================================================================

func TestHealth(t *testing.T) {
	f := setupServer(t, false)
	rec := f.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	f := setupServer(t, false)

	rec := f.get(t, "/api/status")
	assert.Equal(t, http.StatusNotFound, rec.Code, "missing status file")

	f.writeStatus(t, core.RunStatus{
		core.StageCameraInit: {Status: core.StatusDone, Progress: 100},
	})

	rec = f.get(t, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"camera_init":{"status":"done","progress":100}}`, rec.Body.String())
}

func TestMetadata(t *testing.T) {
	f := setupServer(t, false)

	rec := f.get(t, "/api/metadata")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	meta := core.NewRunMetadata()
	meta.GlobalReport.TimeTaken = 12.5
	status.NewMetadataStore(f.statusDir, nil).Write(meta)

	rec = f.get(t, "/api/metadata")
	require.Equal(t, http.StatusOK, rec.Code)

	var got core.RunMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 12.5, got.GlobalReport.TimeTaken, 1e-9)
}

func TestMetadata_CorruptFile(t *testing.T) {
	f := setupServer(t, false)
	path := filepath.Join(f.statusDir, status.MetadataFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	rec := f.get(t, "/api/metadata")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to parse")
}

func TestStages(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantStages int
	}{
		{"default is textured mesh", "", http.StatusOK, 12},
		{"point cloud", "?output_type=POINT_CLOUD", http.StatusOK, 5},
		{"case insensitive", "?output_type=mesh", http.StatusOK, 10},
		{"unknown output type", "?output_type=VOXELS", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupServer(t, false)
			rec := f.get(t, "/api/stages"+tt.query)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var got StagesResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Len(t, got.Stages, tt.wantStages)

			in := make(map[core.StageID]bool)
			for _, id := range got.Stages {
				in[id] = true
			}
			require.NotEmpty(t, got.Edges)
			for _, e := range got.Edges {
				assert.True(t, in[e.From] && in[e.To], "edge %s -> %s leaves the stage set", e.From, e.To)
			}
		})
	}
}

func TestRuns_WithoutHistory(t *testing.T) {
	f := setupServer(t, false)

	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/runs/abc").Code)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	f := setupServer(t, true)

	rec := f.get(t, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	run, err := f.history.CreateRun(ctx, state.NewRun{
		Quality:    core.QualityDraft,
		OutputType: core.OutputMesh,
		ImageCount: 12,
		OutputDir:  "/out",
	})
	require.NoError(t, err)
	require.NoError(t, f.history.RecordStage(ctx, state.StageRun{
		RunID: run.ID, Stage: core.StageCameraInit, Success: true, TimeTaken: 1.5,
	}))

	rec = f.get(t, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []state.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rec = f.get(t, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		ID     string           `json:"id"`
		Stages []state.StageRun `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, run.ID, detail.ID)
	require.Len(t, detail.Stages, 1)
	assert.Equal(t, core.StageCameraInit, detail.Stages[0].Stage)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/runs/missing").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/runs?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/runs?limit=-1").Code)
}

// =============================================================================
// SSE endpoint
// =============================================================================

// readEvent reads one server-sent event block.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) == "" {
			if b.Len() > 0 {
				return b.String()
			}
			continue
		}
		b.WriteString(line)
	}
}

func TestStatusEvents(t *testing.T) {
	f := setupServer(t, false)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/status/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	reader := bufio.NewReader(resp.Body)

	first := readEvent(t, reader)
	assert.Contains(t, first, "datastar-patch-signals")
	assert.Contains(t, first, `"status":{}`, "missing status file is sent as empty")

	// Wait until the handler has subscribed before broadcasting.
	require.Eventually(t, func() bool { return f.server.Notifier().Listeners() == 1 },
		time.Second, 10*time.Millisecond)

	f.writeStatus(t, core.RunStatus{
		core.StageDepthMap: {Status: core.StatusInProgress, Progress: 50},
	})
	f.server.Notifier().Broadcast()

	second := readEvent(t, reader)
	assert.Contains(t, second, "depth_map")
	assert.Contains(t, second, "in progress")
}

func TestStatusSocket(t *testing.T) {
	f := setupServer(t, false)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/status/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first StatusMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Empty(t, first.Status, "missing status file is sent as empty")
	assert.Empty(t, first.Error)

	require.Eventually(t, func() bool { return f.server.Notifier().Listeners() == 1 },
		time.Second, 10*time.Millisecond)

	f.writeStatus(t, core.RunStatus{
		core.StageMeshing: {Status: core.StatusDone, Progress: 100},
	})
	f.server.Notifier().Broadcast()

	var second StatusMessage
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, core.StageState{Status: core.StatusDone, Progress: 100}, second.Status[core.StageMeshing])
}
