// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanschultz/kanflow/internal/adapters/server/common"
)

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	metrics common.MetricsReader
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over a metrics reader.
func NewHandler(metrics common.MetricsReader) *Handler {
	return &Handler{metrics: metrics}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	if path != "items" && path != "daily" && path != "quality" {
		if _, ok := resolveItemStateKey(path); !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.metrics == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "metrics service is not configured",
		})
		return
	}

	switch path {
	case "items":
		h.handleItemMetrics(w, r)
	case "daily":
		h.handleDailySnapshots(w, r)
	case "quality":
		h.handleQualityReport(w, r)
	default:
		key, _ := resolveItemStateKey(path)
		h.handleItemState(w, r, key)
	}
}

// handleItemMetrics serves GET `/items`.
func (h *Handler) handleItemMetrics(w http.ResponseWriter, r *http.Request) {
	result, err := h.metrics.ItemMetrics(r.Context(), common.ItemMetricsRequest{
		AsOf: r.URL.Query().Get("as_of"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDailySnapshots serves GET `/daily`.
func (h *Handler) handleDailySnapshots(w http.ResponseWriter, r *http.Request) {
	result, err := h.metrics.DailySnapshots(r.Context(), common.DailySnapshotsRequest{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleItemState serves GET `/items/{key}/state`.
func (h *Handler) handleItemState(w http.ResponseWriter, r *http.Request, key string) {
	result, err := h.metrics.ItemState(r.Context(), common.ItemStateRequest{
		Key:  key,
		Date: r.URL.Query().Get("date"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleQualityReport serves GET `/quality`.
func (h *Handler) handleQualityReport(w http.ResponseWriter, r *http.Request) {
	result, err := h.metrics.QualityReport(r.Context(), common.QualityReportRequest{
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// resolveItemStateKey parses `items/{key}/state` and returns `{key}`.
func resolveItemStateKey(path string) (string, bool) {
	const (
		prefix = "items/"
		suffix = "/state"
	)
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	key := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix))
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
			Hint:    "Dates use YYYY-MM-DD.",
		})
	case errors.Is(err, common.ErrDatasetUnavailable):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "dataset_unavailable",
			Message: err.Error(),
			Hint:    "Fix the status mappings or set board.id, then retry.",
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}
