// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"

	"github.com/evanschultz/kanflow/internal/app"
)

// ErrInvalidRequest reports malformed request input such as bad dates or unknown categories.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrDatasetUnavailable reports stored data that cannot be measured until it is fixed or configured.
var ErrDatasetUnavailable = errors.New("dataset unavailable")

// ItemMetricsRequest asks for per-item metrics; an empty AsOf means today.
type ItemMetricsRequest struct {
	AsOf string
}

// ItemMetricsResult carries per-item metrics and the date they were measured at.
type ItemMetricsResult struct {
	AsOf  string            `json:"as_of"`
	Items []app.ItemMetrics `json:"items"`
}

// DailySnapshotsRequest asks for reconstructed days; empty bounds default to the last 30 days.
type DailySnapshotsRequest struct {
	From string
	To   string
}

// DailySnapshotsResult carries one entry per reconstructed date.
type DailySnapshotsResult struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Days []app.DailyView `json:"days"`
}

// ItemStateRequest asks for the blocked/stalled state of one item; an empty Date means today.
type ItemStateRequest struct {
	Key  string
	Date string
}

// QualityReportRequest asks for quality problems, optionally limited to one category.
type QualityReportRequest struct {
	Category string
}

// QualityReportResult carries quality problems and per-category counts.
type QualityReportResult struct {
	Category string               `json:"category,omitempty"`
	Counts   map[string]int       `json:"counts"`
	Problems []app.QualityProblem `json:"problems"`
}

// MetricsReader serves every read-only metrics query exposed over the network.
type MetricsReader interface {
	ItemMetrics(context.Context, ItemMetricsRequest) (ItemMetricsResult, error)
	DailySnapshots(context.Context, DailySnapshotsRequest) (DailySnapshotsResult, error)
	ItemState(context.Context, ItemStateRequest) (app.ItemStateView, error)
	QualityReport(context.Context, QualityReportRequest) (QualityReportResult, error)
}
