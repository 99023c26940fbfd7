package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/evanschultz/kanflow/internal/adapters/server/common"
	"github.com/evanschultz/kanflow/internal/app"
	"github.com/evanschultz/kanflow/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// stubMetricsReader provides deterministic metrics responses for MCP tool tests.
type stubMetricsReader struct {
	err         error
	lastMetrics common.ItemMetricsRequest
	lastDaily   common.DailySnapshotsRequest
	lastState   common.ItemStateRequest
	lastQuality common.QualityReportRequest
}

// ItemMetrics records the request and returns one fixture row.
func (s *stubMetricsReader) ItemMetrics(_ context.Context, req common.ItemMetricsRequest) (common.ItemMetricsResult, error) {
	s.lastMetrics = req
	if s.err != nil {
		return common.ItemMetricsResult{}, s.err
	}
	return common.ItemMetricsResult{AsOf: "2024-01-12", Items: []app.ItemMetrics{{Key: "K-1"}}}, nil
}

// DailySnapshots records the request and returns an empty range.
func (s *stubMetricsReader) DailySnapshots(_ context.Context, req common.DailySnapshotsRequest) (common.DailySnapshotsResult, error) {
	s.lastDaily = req
	if s.err != nil {
		return common.DailySnapshotsResult{}, s.err
	}
	return common.DailySnapshotsResult{From: req.From, To: req.To, Days: []app.DailyView{}}, nil
}

// ItemState records the request and returns a stalled state.
func (s *stubMetricsReader) ItemState(_ context.Context, req common.ItemStateRequest) (app.ItemStateView, error) {
	s.lastState = req
	if s.err != nil {
		return app.ItemStateView{}, s.err
	}
	return app.ItemStateView{Key: req.Key, Date: "2024-01-15", State: domain.StateStalled, Reasons: []string{"Stalled by inactivity: 11 days"}}, nil
}

// QualityReport records the request and returns no problems.
func (s *stubMetricsReader) QualityReport(_ context.Context, req common.QualityReportRequest) (common.QualityReportResult, error) {
	s.lastQuality = req
	if s.err != nil {
		return common.QualityReportResult{}, s.err
	}
	return common.QualityReportResult{Category: req.Category, Counts: map[string]int{}, Problems: []app.QualityProblem{}}, nil
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "kanflow-test",
				"version": "1.0.0",
			},
		},
	}
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()
	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, _ := first["text"].(string)
	return text
}

// newTestServer starts an httptest server over a fresh MCP handler and initializes it.
func newTestServer(t *testing.T, metrics common.MetricsReader) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, metrics)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	resp, _ := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
	return server
}

func TestHandlerRegistersMetricsTools(t *testing.T) {
	server := newTestServer(t, &stubMetricsReader{})
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})
	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	names := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		if toolMap, ok := toolRaw.(map[string]any); ok {
			name, _ := toolMap["name"].(string)
			names = append(names, name)
		}
	}
	for _, want := range []string{"kanflow.item_metrics", "kanflow.daily_snapshots", "kanflow.item_state", "kanflow.quality_report"} {
		if !slices.Contains(names, want) {
			t.Fatalf("tool list missing %s: %#v", want, names)
		}
	}
}

func TestHandlerToolCalls(t *testing.T) {
	stub := &stubMetricsReader{}
	server := newTestServer(t, stub)

	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "kanflow.item_metrics", map[string]any{"as_of": "2024-01-12"}))
	structured, ok := resp.Result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in response: %#v", resp.Result)
	}
	if got, _ := structured["as_of"].(string); got != "2024-01-12" || stub.lastMetrics.AsOf != "2024-01-12" {
		t.Fatalf("as_of = %q, request %#v", got, stub.lastMetrics)
	}

	_, _ = postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "kanflow.daily_snapshots", map[string]any{"from": "2024-01-01", "to": "2024-01-07"}))
	if stub.lastDaily.From != "2024-01-01" || stub.lastDaily.To != "2024-01-07" {
		t.Fatalf("unexpected daily request %#v", stub.lastDaily)
	}

	_, resp = postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "kanflow.item_state", map[string]any{"key": "K-2"}))
	structured, _ = resp.Result["structuredContent"].(map[string]any)
	if got, _ := structured["state"].(string); got != string(domain.StateStalled) || stub.lastState.Key != "K-2" {
		t.Fatalf("state = %q, request %#v", got, stub.lastState)
	}

	_, _ = postJSONRPC(t, server.Client(), server.URL, callToolRequest(6, "kanflow.quality_report", map[string]any{"category": "discarded-data"}))
	if stub.lastQuality.Category != "discarded-data" {
		t.Fatalf("unexpected quality request %#v", stub.lastQuality)
	}
}

func TestHandlerToolCallErrorPaths(t *testing.T) {
	server := newTestServer(t, &stubMetricsReader{err: errors.Join(common.ErrNotFound, errors.New("item K-9"))})

	_, missing := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "kanflow.item_state", map[string]any{}))
	if isError, _ := missing.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", missing.Result["isError"])
	}
	if got := toolResultText(t, missing.Result); !strings.Contains(got, `required argument "key" not found`) {
		t.Fatalf("error text = %q, want required key message", got)
	}

	_, mapped := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "kanflow.item_state", map[string]any{"key": "K-9"}))
	if got := toolResultText(t, mapped.Result); !strings.HasPrefix(got, "not_found:") {
		t.Fatalf("error text = %q, want not_found prefix", got)
	}
}

func TestToolResultFromErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{name: "nil error", err: nil, wantPrefix: "unknown error"},
		{name: "invalid", err: errors.Join(common.ErrInvalidRequest, errors.New("bad date")), wantPrefix: "invalid_request:"},
		{name: "not found", err: errors.Join(common.ErrNotFound, errors.New("missing")), wantPrefix: "not_found:"},
		{name: "dataset", err: errors.Join(common.ErrDatasetUnavailable, errors.New("ambiguous")), wantPrefix: "dataset_unavailable:"},
		{name: "internal", err: errors.New("boom"), wantPrefix: "internal_error:"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := toolResultFromError(tt.err)
			if !result.IsError {
				t.Fatalf("IsError = false, want true")
			}
			text, ok := result.Content[0].(mcp.TextContent)
			if !ok {
				t.Fatalf("content[0] has unexpected type %T", result.Content[0])
			}
			if !strings.HasPrefix(text.Text, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", text.Text, tt.wantPrefix)
			}
		})
	}
}

func TestNewHandlerRequiresMetrics(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("NewHandler() error = nil, want error")
	}
}

func TestNormalizeConfig(t *testing.T) {
	got := normalizeConfig(Config{EndpointPath: "tools/mcp/"})
	if got.ServerName != "kanflow" || got.ServerVersion != "dev" || got.EndpointPath != "/tools/mcp" {
		t.Fatalf("unexpected config %#v", got)
	}
}

func TestHandlerServeHTTPUnavailable(t *testing.T) {
	var handler *Handler
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
