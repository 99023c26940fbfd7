package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evanschultz/kanflow/internal/adapters/server/common"
	"github.com/evanschultz/kanflow/internal/app"
)

// stubMetricsReader returns empty results for routing tests.
type stubMetricsReader struct{}

func (stubMetricsReader) ItemMetrics(context.Context, common.ItemMetricsRequest) (common.ItemMetricsResult, error) {
	return common.ItemMetricsResult{AsOf: "2024-01-01", Items: []app.ItemMetrics{}}, nil
}

func (stubMetricsReader) DailySnapshots(context.Context, common.DailySnapshotsRequest) (common.DailySnapshotsResult, error) {
	return common.DailySnapshotsResult{Days: []app.DailyView{}}, nil
}

func (stubMetricsReader) ItemState(_ context.Context, req common.ItemStateRequest) (app.ItemStateView, error) {
	return app.ItemStateView{Key: req.Key}, nil
}

func (stubMetricsReader) QualityReport(context.Context, common.QualityReportRequest) (common.QualityReportResult, error) {
	return common.QualityReportResult{Counts: map[string]int{}, Problems: []app.QualityProblem{}}, nil
}

func TestNewHandlerRoutes(t *testing.T) {
	handler, cfg, err := NewHandler(Config{APIEndpoint: "api/v1/"}, Dependencies{Metrics: stubMetricsReader{}})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" || cfg.HTTPBind != defaultBindAddress {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}

	for path, want := range map[string]int{
		"/healthz":                http.StatusOK,
		"/readyz":                 http.StatusOK,
		"/api/v1/items":           http.StatusOK,
		"/api/v1/items/K-1/state": http.StatusOK,
		"/api/v1/nothing":         http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Fatalf("GET %s status = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestReadyzReportsStorageFailure(t *testing.T) {
	handler, _, err := NewHandler(Config{}, Dependencies{
		Metrics: stubMetricsReader{},
		Ready:   func(context.Context) error { return errors.New("database is locked") },
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestNewHandlerValidation(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected missing metrics dependency error")
	}
	if _, _, err := NewHandler(Config{APIEndpoint: "/x", MCPEndpoint: "/x/"}, Dependencies{Metrics: stubMetricsReader{}}); err == nil {
		t.Fatal("expected endpoint collision error")
	}
}
