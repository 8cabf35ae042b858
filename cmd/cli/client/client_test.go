package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benchscale/benchscale/internal/api"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/report"
	"github.com/benchscale/benchscale/internal/scaling"
)

func TestListWorkloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workloads" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]api.WorkloadInfo{
			{Name: "richards", Recorded: true},
			{Name: "sieve", Micro: true},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.ListWorkloads(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 workloads, got %d", len(result))
	}
	if !result[1].Micro {
		t.Error("expected sieve to be a microbenchmark")
	}
}

func TestListRuns(t *testing.T) {
	items := []database.DataItem{
		{Workload: "richards", Runtime: 0.5, Revision: "abc", HardwareID: "hw"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("workload") != "richards" {
			t.Errorf("expected workload filter, got query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(items)
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.ListRuns(context.Background(), database.RunFilter{Workload: "richards"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result))
	}
	if result[0].Revision != "abc" {
		t.Errorf("unexpected revision: %s", result[0].Revision)
	}
}

func TestListRuns_AllFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("mode") != "interpreted" {
			t.Errorf("expected mode=interpreted, got %s", q.Get("mode"))
		}
		if q.Get("revision") != "abc" {
			t.Errorf("expected revision=abc, got %s", q.Get("revision"))
		}
		if q.Get("hardware") != "Intel Core i7-2600K (64-bit)" {
			t.Errorf("unexpected hardware: %s", q.Get("hardware"))
		}
		json.NewEncoder(w).Encode([]database.DataItem{})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ListRuns(context.Background(), database.RunFilter{
		Workload:   "richards",
		Mode:       database.ModeInterpreted,
		Revision:   "abc",
		HardwareID: "Intel Core i7-2600K (64-bit)",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAppendRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/v1/runs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req api.AppendRunRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Mode != database.ModeCompiled {
			t.Errorf("unexpected mode: %s", req.Mode)
		}
		if req.Item.Workload != "richards" {
			t.Errorf("unexpected workload: %s", req.Item.Workload)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(req.Item)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.AppendRun(context.Background(), database.ModeCompiled, database.DataItem{
		Workload:  "richards",
		Runtime:   0.5,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workloads/richards/normalized" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(api.NormalizedResponse{
			Workload: "richards",
			Current:  &scaling.Node{Hardware: "hw2", RuntimeVersion: "3.10"},
			Runs:     []database.DataItem{{Workload: "richards", Runtime: 0.25}},
			Unscaled: 1,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Normalized(context.Background(), "richards")
	if err != nil {
		t.Fatal(err)
	}
	if result.Current == nil || result.Current.Hardware != "hw2" {
		t.Errorf("unexpected current configuration: %+v", result.Current)
	}
	if result.Unscaled != 1 {
		t.Errorf("expected 1 unscaled run, got %d", result.Unscaled)
	}
}

func TestWorkloadReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workloads/richards/report" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]report.Row{{Workload: "richards", Perf: "4.00x", Relative: 4}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	rows, err := c.WorkloadReport(context.Background(), "richards")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Perf != "4.00x" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestListScaling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/scaling" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("workload") != "richards" {
			t.Errorf("expected workload filter, got query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]database.ScalingItem{{Workload: "richards", Factor: 1.5}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	items, err := c.ListScaling(context.Background(), "richards")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Factor != 1.5 {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestAppendScaling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var items []database.ScalingItem
		json.NewDecoder(r.Body).Decode(&items)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"appended": len(items)})
	}))
	defer srv.Close()

	c := New(srv.URL)
	n, err := c.AppendScaling(context.Background(), []database.ScalingItem{
		{Workload: "richards", Factor: 1.5},
		{Workload: "nqueens", Factor: 1.2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 appended, got %d", n)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no runs for workload nope"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Normalized(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "API error 404: no runs for workload nope" {
		t.Errorf("unexpected error message: %s", got)
	}
}

func TestAppendScaling_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad things"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.AppendScaling(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "API error 400: bad things" {
		t.Errorf("unexpected error: %s", got)
	}
}
