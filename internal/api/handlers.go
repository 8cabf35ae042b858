package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/report"
	"github.com/benchscale/benchscale/internal/scaling"
	"github.com/benchscale/benchscale/internal/workload"
)

// Server holds dependencies for API handlers.
type Server struct {
	repo     database.Repo
	registry *workload.Registry
	engine   *scaling.Engine
	logger   *slog.Logger
}

// NewServer creates a new API server. registry may be nil, in which case
// workloads are known only from recorded data.
func NewServer(repo database.Repo, registry *workload.Registry) *Server {
	return &Server{
		repo:     repo,
		registry: registry,
		engine:   &scaling.Engine{},
		logger:   slog.Default(),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/workloads", s.handleListWorkloads)
	mux.HandleFunc("GET /api/v1/workloads/{name}/normalized", s.handleNormalized)
	mux.HandleFunc("GET /api/v1/workloads/{name}/report", s.handleWorkloadReport)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/v1/runs", s.handleAppendRun)
	mux.HandleFunc("GET /api/v1/scaling", s.handleListScaling)
	mux.HandleFunc("POST /api/v1/scaling", s.handleAppendScaling)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// WorkloadInfo describes a workload known to the catalogue or the store.
type WorkloadInfo struct {
	Name         string `json:"name"`
	Micro        bool   `json:"micro"`
	CompiledOnly bool   `json:"compiled_only"`
	Recorded     bool   `json:"recorded"`
}

// AppendRunRequest is the body of POST /api/v1/runs.
type AppendRunRequest struct {
	Mode database.Mode     `json:"mode"`
	Item database.DataItem `json:"item"`
}

// NormalizedResponse is the body of GET /api/v1/workloads/{name}/normalized.
type NormalizedResponse struct {
	Workload string              `json:"workload"`
	Current  *scaling.Node       `json:"current,omitempty"`
	Runs     []database.DataItem `json:"runs"`
	Unscaled int                 `json:"unscaled"`
}

func (s *Server) handleListWorkloads(w http.ResponseWriter, r *http.Request) {
	recorded, err := s.repo.ListWorkloads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "workload query failed")
		return
	}
	byName := make(map[string]*WorkloadInfo)
	if s.registry != nil {
		for _, wl := range s.registry.All() {
			byName[wl.Name] = &WorkloadInfo{Name: wl.Name, Micro: wl.Micro, CompiledOnly: wl.CompiledOnly}
		}
	}
	for _, name := range recorded {
		info, ok := byName[name]
		if !ok {
			info = &WorkloadInfo{Name: name}
			byName[name] = info
		}
		info.Recorded = true
	}
	out := make([]WorkloadInfo, 0, len(byName))
	for _, info := range byName {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := database.RunFilter{
		Workload:   q.Get("workload"),
		Revision:   q.Get("revision"),
		HardwareID: q.Get("hardware"),
	}
	if v := q.Get("mode"); v != "" {
		m, ok := database.ParseMode(v)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", v))
			return
		}
		f.Mode = m
	}

	items, err := s.repo.ListRuns(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "runs query failed")
		return
	}
	if items == nil {
		items = []database.DataItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAppendRun(w http.ResponseWriter, r *http.Request) {
	var req AppendRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := database.ParseMode(string(req.Mode)); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", req.Mode))
		return
	}
	if req.Item.Workload == "" {
		writeError(w, http.StatusBadRequest, "workload is required")
		return
	}
	if err := database.ValidateWorkloadName(req.Item.Workload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.AppendRun(r.Context(), req.Mode, req.Item); err != nil {
		s.logger.Error("append run failed", "workload", req.Item.Workload, "err", err)
		writeError(w, http.StatusInternalServerError, "append run failed")
		return
	}
	writeJSON(w, http.StatusCreated, req.Item)
}

func (s *Server) handleNormalized(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := r.Context()
	runs, err := s.repo.ListRuns(ctx, database.RunFilter{Workload: name, Mode: database.ModeCompiled})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "runs query failed")
		return
	}
	if len(runs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no runs for workload %s", name))
		return
	}
	edges, err := s.repo.ListScalingItems(ctx, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scaling query failed")
		return
	}

	out, current, unscaled, err := s.engine.NormalizeWorkload(runs, edges)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	resp := NormalizedResponse{Workload: name, Runs: out, Unscaled: unscaled}
	if len(edges) > 0 {
		resp.Current = &current
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWorkloadReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := r.Context()
	runs, err := s.repo.ListRuns(ctx, database.RunFilter{Workload: name, Mode: database.ModeCompiled})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "runs query failed")
		return
	}
	if len(runs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no runs for workload %s", name))
		return
	}
	baselines, err := s.repo.ListRuns(ctx, database.RunFilter{Workload: name, Mode: database.ModeInterpreted})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "baseline query failed")
		return
	}
	micro := false
	if s.registry != nil {
		if wl, err := s.registry.Lookup(name); err == nil {
			micro = wl.Micro
		}
	}
	writeJSON(w, http.StatusOK, report.WorkloadRows(baselines, report.NewestFirst(runs, nil), micro))
}

func (s *Server) handleListScaling(w http.ResponseWriter, r *http.Request) {
	items, err := s.repo.ListScalingItems(r.Context(), r.URL.Query().Get("workload"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scaling query failed")
		return
	}
	if items == nil {
		items = []database.ScalingItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAppendScaling(w http.ResponseWriter, r *http.Request) {
	var items []database.ScalingItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "no scaling items")
		return
	}
	for _, it := range items {
		if it.Workload == "" || it.Factor <= 0 {
			writeError(w, http.StatusBadRequest, "scaling items need a workload and a positive factor")
			return
		}
	}
	if err := s.repo.AppendScalingItems(r.Context(), items); err != nil {
		s.logger.Error("append scaling items failed", "err", err)
		writeError(w, http.StatusInternalServerError, "append scaling items failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"appended": len(items)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
