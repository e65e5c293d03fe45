package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/internal/state"
	"github.com/leapstack-labs/meshflow/internal/status"
	"github.com/leapstack-labs/meshflow/internal/structure"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// DefaultRunLimit is the number of runs listed when no limit is given.
const DefaultRunLimit = 20

func (s *Server) setupRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/status/events", s.handleStatusEvents)
		r.Get("/status/ws", s.handleStatusSocket)
		r.Get("/metadata", s.handleMetadata)
		r.Get("/stages", s.handleStages)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
		})
	})
}

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, err := status.ReadStatus(s.statusPath)
	if err != nil {
		writeError(w, fileErrorCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	meta, err := status.ReadMetadata(s.metadataPath)
	if err != nil {
		writeError(w, fileErrorCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// StagesResponse lists the stages of an output type and their dependencies.
type StagesResponse struct {
	OutputType core.OutputType `json:"output_type"`
	Stages     []core.StageID  `json:"stages"`
	Edges      []StageEdge     `json:"edges"`
}

// StageEdge is one artifact dependency between two stages.
type StageEdge struct {
	From  core.StageID `json:"from"`
	To    core.StageID `json:"to"`
	Label string       `json:"label"`
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("output_type")
	if raw == "" {
		raw = string(core.OutputTexturedMesh)
	}
	ot, err := core.ParseOutputType(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stages, err := structure.Resolve(ot)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, StagesResponse{
		OutputType: ot,
		Stages:     stages,
		Edges:      stageEdges(stages),
	})
}

// stageEdges returns the dependency edges among the given stages.
func stageEdges(stages []core.StageID) []StageEdge {
	edges := []StageEdge{}
	for _, e := range locations.Graph().Subgraph(stages).Edges() {
		edges = append(edges, StageEdge{From: e.From, To: e.To, Label: e.Label})
	}
	return edges
}

// RunResponse is a recorded run with its stage summaries.
type RunResponse struct {
	*state.Run
	Stages []state.StageRun `json:"stages"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	limit := DefaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*state.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, state.ErrRunNotFound) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	stages, err := s.history.GetStageRuns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if stages == nil {
		stages = []state.StageRun{}
	}
	writeJSON(w, http.StatusOK, RunResponse{Run: run, Stages: stages})
}

// handleStatusEvents is the long-lived SSE endpoint for the live status.
// It sends the current status, then again after every change to the file.
func (s *Server) handleStatusEvents(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	s.sendStatus(sse)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			s.sendStatus(sse)
		}
	}
}

// sendStatus patches the "status" signal with the current status file.
// A status file that does not exist yet is sent as an empty status.
func (s *Server) sendStatus(sse *datastar.ServerSentEventGenerator) {
	st, err := status.ReadStatus(s.statusPath)
	if errors.Is(err, fs.ErrNotExist) {
		st, err = core.RunStatus{}, nil
	}
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	if err := sse.MarshalAndPatchSignals(map[string]any{"status": st}); err != nil {
		s.logger.Debug("failed to send status event", "error", err)
	}
}

var errNoHistory = errors.New("run history is not configured")

func fileErrorCode(err error) int {
	if errors.Is(err, fs.ErrNotExist) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
