// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanschultz/kanflow/internal/adapters/server/common"
	"github.com/evanschultz/kanflow/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the metrics tools.
func NewHandler(cfg Config, metrics common.MetricsReader) (*Handler, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metrics service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerItemMetricsTool(mcpSrv, metrics)
	registerDailySnapshotsTool(mcpSrv, metrics)
	registerItemStateTool(mcpSrv, metrics)
	registerQualityReportTool(mcpSrv, metrics)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "kanflow"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerItemMetricsTool registers the `kanflow.item_metrics` tool.
func registerItemMetricsTool(srv *mcpserver.MCPServer, metrics common.MetricsReader) {
	srv.AddTool(
		mcp.NewTool(
			"kanflow.item_metrics",
			mcp.WithDescription("Return start, stop, cycle time and age for every item."),
			mcp.WithString("as_of", mcp.Description("Measurement date YYYY-MM-DD (defaults to today)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := metrics.ItemMetrics(ctx, common.ItemMetricsRequest{AsOf: req.GetString("as_of", "")})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("item_metrics", out)
		},
	)
}

// registerDailySnapshotsTool registers the `kanflow.daily_snapshots` tool.
func registerDailySnapshotsTool(srv *mcpserver.MCPServer, metrics common.MetricsReader) {
	srv.AddTool(
		mcp.NewTool(
			"kanflow.daily_snapshots",
			mcp.WithDescription("Return active and completed item keys for each date in a range."),
			mcp.WithString("from", mcp.Description("First date YYYY-MM-DD (defaults to 30 days before to)")),
			mcp.WithString("to", mcp.Description("Last date YYYY-MM-DD (defaults to today)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := metrics.DailySnapshots(ctx, common.DailySnapshotsRequest{
				From: req.GetString("from", ""),
				To:   req.GetString("to", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("daily_snapshots", out)
		},
	)
}

// registerItemStateTool registers the `kanflow.item_state` tool.
func registerItemStateTool(srv *mcpserver.MCPServer, metrics common.MetricsReader) {
	srv.AddTool(
		mcp.NewTool(
			"kanflow.item_state",
			mcp.WithDescription("Classify one item as blocked, stalled or neither on a date."),
			mcp.WithString("key", mcp.Required(), mcp.Description("Item key")),
			mcp.WithString("date", mcp.Description("Date YYYY-MM-DD (defaults to today)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			key, err := req.RequireString("key")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := metrics.ItemState(ctx, common.ItemStateRequest{Key: key, Date: req.GetString("date", "")})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("item_state", out)
		},
	)
}

// registerQualityReportTool registers the `kanflow.quality_report` tool.
func registerQualityReportTool(srv *mcpserver.MCPServer, metrics common.MetricsReader) {
	categories := make([]string, 0, len(app.ProblemCategories()))
	for _, category := range app.ProblemCategories() {
		categories = append(categories, string(category))
	}
	srv.AddTool(
		mcp.NewTool(
			"kanflow.quality_report",
			mcp.WithDescription("Return data-quality problems found in item changelogs."),
			mcp.WithString("category", mcp.Description("Limit to one problem category"), mcp.Enum(categories...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := metrics.QualityReport(ctx, common.QualityReportRequest{Category: req.GetString("category", "")})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("quality_report", out)
		},
	)
}

// jsonResult encodes one structured tool result.
func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrDatasetUnavailable):
		return mcp.NewToolResultError("dataset_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
