package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/kanflow/internal/app"
	"github.com/evanschultz/kanflow/internal/domain"
)

// defaultDailyWindowDays is the number of days returned when no daily range is given.
const defaultDailyWindowDays = 30

// AppServiceAdapter maps transport contracts onto app.Service metrics APIs.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// ItemMetrics returns per-item cycle-time figures as of the requested date.
func (a *AppServiceAdapter) ItemMetrics(ctx context.Context, in ItemMetricsRequest) (ItemMetricsResult, error) {
	if err := a.ready(); err != nil {
		return ItemMetricsResult{}, err
	}
	asOf, err := a.dateOrToday("as_of", in.AsOf)
	if err != nil {
		return ItemMetricsResult{}, err
	}
	items, err := a.service.ItemMetrics(ctx, asOf)
	if err != nil {
		return ItemMetricsResult{}, mapAppError("item metrics", err)
	}
	return ItemMetricsResult{AsOf: asOf.Format(domain.DateLayout), Items: items}, nil
}

// DailySnapshots returns active and completed item keys per date.
func (a *AppServiceAdapter) DailySnapshots(ctx context.Context, in DailySnapshotsRequest) (DailySnapshotsResult, error) {
	if err := a.ready(); err != nil {
		return DailySnapshotsResult{}, err
	}
	to, err := a.dateOrToday("to", in.To)
	if err != nil {
		return DailySnapshotsResult{}, err
	}
	from := to.AddDate(0, 0, -(defaultDailyWindowDays - 1))
	if strings.TrimSpace(in.From) != "" {
		if from, err = parseDate("from", in.From); err != nil {
			return DailySnapshotsResult{}, err
		}
	}
	if to.After(from.AddDate(0, 0, app.MaxRangeDays-1)) {
		return DailySnapshotsResult{}, fmt.Errorf("daily range %s to %s spans more than %d days: %w",
			from.Format(domain.DateLayout), to.Format(domain.DateLayout), app.MaxRangeDays, ErrInvalidRequest)
	}
	days, err := a.service.DailySnapshots(ctx, from, to)
	if err != nil {
		return DailySnapshotsResult{}, mapAppError("daily snapshots", err)
	}
	return DailySnapshotsResult{
		From: from.Format(domain.DateLayout),
		To:   to.Format(domain.DateLayout),
		Days: days,
	}, nil
}

// ItemState classifies one item as blocked, stalled or neither on the requested date.
func (a *AppServiceAdapter) ItemState(ctx context.Context, in ItemStateRequest) (app.ItemStateView, error) {
	if err := a.ready(); err != nil {
		return app.ItemStateView{}, err
	}
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return app.ItemStateView{}, fmt.Errorf("key is required: %w", ErrInvalidRequest)
	}
	date, err := a.dateOrToday("date", in.Date)
	if err != nil {
		return app.ItemStateView{}, err
	}
	view, err := a.service.ItemState(ctx, key, date)
	if err != nil {
		return app.ItemStateView{}, mapAppError("item state", err)
	}
	return view, nil
}

// QualityReport returns quality problems, filtered to one category when requested.
func (a *AppServiceAdapter) QualityReport(ctx context.Context, in QualityReportRequest) (QualityReportResult, error) {
	if err := a.ready(); err != nil {
		return QualityReportResult{}, err
	}
	var (
		category app.ProblemCategory
		filtered bool
	)
	if raw := strings.TrimSpace(in.Category); raw != "" {
		parsed, ok := app.ParseProblemCategory(raw)
		if !ok {
			return QualityReportResult{}, fmt.Errorf("unknown category %q: %w", raw, ErrInvalidRequest)
		}
		category, filtered = parsed, true
	}
	report, err := a.service.QualityReport(ctx)
	if err != nil {
		return QualityReportResult{}, mapAppError("quality report", err)
	}

	counts := map[string]int{}
	for cat, count := range report.CategoryCounts() {
		counts[string(cat)] = count
	}
	out := QualityReportResult{Counts: counts, Problems: report.Problems()}
	if filtered {
		out.Category = string(category)
		out.Problems = report.ProblemsFor(category)
	}
	return out, nil
}

// ready reports whether the adapter has a backing service.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrDatasetUnavailable)
	}
	return nil
}

// dateOrToday parses raw as a calendar date, defaulting to today in the configured location.
func (a *AppServiceAdapter) dateOrToday(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return a.service.Today(), nil
	}
	return parseDate(field, raw)
}

func parseDate(field, raw string) (time.Time, error) {
	date, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD, got %q: %w", field, raw, ErrInvalidRequest)
	}
	return date, nil
}

// mapAppError maps app and domain failures into transport error kinds.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrInvalidDateRange):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, app.ErrNoBoard),
		errors.Is(err, domain.ErrUnknownCategoryMapping),
		errors.Is(err, domain.ErrConflictingStatusCategory),
		errors.Is(err, domain.ErrAmbiguousBoardConfiguration),
		errors.Is(err, domain.ErrMissingChangelog):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrDatasetUnavailable, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
