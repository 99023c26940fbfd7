package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kanflow/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Settings holds the metrics configuration threaded into every service call.
type Settings struct {
	Policy               PolicySpec
	Blocked              domain.BlockedStalledSettings
	BoardID              int
	DiscardStatusBecomes []string
	Location             *time.Location
	Workers              int
	ExpeditePriority     string
}

// DefaultSettings returns the settings used when no configuration overrides them.
func DefaultSettings() Settings {
	return Settings{
		Policy: PolicySpec{
			Start: RuleSpec{Rule: RuleFirstTimeInStatusCategory, Categories: []string{"In Progress"}},
			Stop:  RuleSpec{Rule: RuleStillInStatusCategory, Categories: []string{"Done"}},
		},
		Blocked: domain.BlockedStalledSettings{
			BlockedLinkTexts:     []string{domain.DefaultBlockedLinkText},
			FlaggedMeansBlocked:  true,
			StalledThresholdDays: domain.DefaultStalledThresholdDays,
		},
		Location: time.UTC,
	}
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service loads stored records and derives process metrics from them.
type Service struct {
	repo     Repository
	idGen    IDGenerator
	clock    Clock
	settings Settings
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, settings Settings) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Workers <= 0 {
		settings.Workers = runtime.GOMAXPROCS(0)
	}
	if settings.Blocked.StalledThresholdDays <= 0 {
		settings.Blocked.StalledThresholdDays = domain.DefaultStalledThresholdDays
	}
	return &Service{
		repo:     repo,
		idGen:    idGen,
		clock:    clock,
		settings: settings,
	}
}

// Settings returns the effective settings.
func (s *Service) Settings() Settings {
	return s.settings
}

// Today returns the current calendar date in the configured location.
func (s *Service) Today() time.Time {
	return domain.DateOf(s.clock().In(s.settings.Location))
}

// ItemFailure records an item that was excluded from a dataset.
type ItemFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Dataset is one fully validated, read-only view of every stored item.
type Dataset struct {
	Board    domain.Board
	Catalog  *domain.StatusCatalog
	Policy   domain.CycleTimePolicy
	Items    []*domain.WorkItem
	Discards map[string]DiscardRecord
	Failures []ItemFailure
	index    map[string]*domain.WorkItem
	failed   map[string]error
}

// Lookup resolves an item in the dataset by key.
func (d *Dataset) Lookup(key string) (*domain.WorkItem, bool) {
	item, ok := d.index[strings.TrimSpace(key)]
	return item, ok
}

// FailureFor returns the load error recorded for a key that was skipped.
func (d *Dataset) FailureFor(key string) error {
	return d.failed[strings.TrimSpace(key)]
}

// LoadDataset reads every record and builds the board, catalog, policy and items.
// Items without a changelog are skipped and listed in Failures; unmapped statuses fail the whole load.
func (s *Service) LoadDataset(ctx context.Context) (*Dataset, error) {
	boards, err := s.repo.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	board, err := ResolveBoard(boards, s.settings.BoardID)
	if err != nil {
		return nil, err
	}
	statuses, err := s.repo.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := domain.NewStatusCatalog(statuses)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListItemRecords(ctx)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Board:    board,
		Catalog:  catalog,
		Items:    make([]*domain.WorkItem, 0, len(records)),
		Discards: map[string]DiscardRecord{},
		Failures: []ItemFailure{},
		index:    map[string]*domain.WorkItem{},
		failed:   map[string]error{},
	}
	for _, rec := range records {
		item, err := domain.NewWorkItem(localizeRecord(rec, s.settings.Location))
		if err != nil {
			if errors.Is(err, domain.ErrMissingChangelog) {
				ds.Failures = append(ds.Failures, ItemFailure{Key: rec.Key, Reason: err.Error()})
				ds.failed[strings.TrimSpace(rec.Key)] = err
				continue
			}
			return nil, fmt.Errorf("item %q: %w", rec.Key, err)
		}
		ds.Items = append(ds.Items, item)
	}
	if err := catalog.Verify(ds.Items); err != nil {
		return nil, err
	}
	ds.Policy, err = BuildPolicy(s.settings.Policy, catalog)
	if err != nil {
		return nil, err
	}
	if names := normalizeNames(s.settings.DiscardStatusBecomes); len(names) > 0 {
		for idx, item := range ds.Items {
			cutoff := item.LastTimeEnteredStatus(names...)
			if cutoff == nil {
				continue
			}
			ds.Discards[item.Key] = DiscardRecord{
				Cutoff:        *cutoff,
				OriginalStart: ds.Policy.StartedTime(item),
				OriginalStop:  ds.Policy.StoppedTime(item),
			}
			ds.Items[idx] = item.DiscardChangesBefore(*cutoff)
		}
	}

	slices.SortStableFunc(ds.Items, func(a, b *domain.WorkItem) int {
		return domain.CompareKeys(a.Key, b.Key)
	})
	for _, item := range ds.Items {
		ds.index[item.Key] = item
	}
	return ds, nil
}

// ResolveBoard picks the board to measure against.
// id 0 selects the only stored board; several stored boards then need an explicit id.
func ResolveBoard(boards []domain.Board, id int) (domain.Board, error) {
	if len(boards) == 0 {
		return domain.Board{}, ErrNoBoard
	}
	if id != 0 {
		for _, board := range boards {
			if board.ID == id {
				return board, nil
			}
		}
		return domain.Board{}, fmt.Errorf("board %d: %w", id, ErrNotFound)
	}
	if len(boards) == 1 {
		return boards[0], nil
	}
	ids := make([]int, 0, len(boards))
	for _, board := range boards {
		ids = append(ids, board.ID)
	}
	slices.Sort(ids)
	return domain.Board{}, &domain.AmbiguousBoardConfigurationError{BoardIDs: ids}
}

// localizeRecord moves every instant of rec into loc so calendar dates bucket in that zone.
func localizeRecord(rec domain.ItemRecord, loc *time.Location) domain.ItemRecord {
	if loc == nil {
		return rec
	}
	rec.CreatedAt = rec.CreatedAt.In(loc)
	if rec.History == nil {
		return rec
	}
	history := make([]domain.HistoryRecord, len(rec.History))
	for idx, batch := range rec.History {
		batch.Time = batch.Time.In(loc)
		history[idx] = batch
	}
	rec.History = history
	return rec
}

// ItemMetrics holds the per-item start, stop and duration figures.
type ItemMetrics struct {
	Key           string     `json:"key"`
	Type          string     `json:"type"`
	Summary       string     `json:"summary"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority,omitempty"`
	Expedite      bool       `json:"expedite"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	CycleTimeDays *int       `json:"cycle_time_days,omitempty"`
	AgeDays       *int       `json:"age_days,omitempty"`
}

// ItemMetrics evaluates the cycle-time policy for every item as of asOf.
func (s *Service) ItemMetrics(ctx context.Context, asOf time.Time) ([]ItemMetrics, error) {
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}
	return s.metricsFor(ctx, ds, asOf)
}

// metricsFor fans the per-item evaluation out over the configured workers.
func (s *Service) metricsFor(ctx context.Context, ds *Dataset, asOf time.Time) ([]ItemMetrics, error) {
	out := make([]ItemMetrics, len(ds.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Workers)
	for idx, item := range ds.Items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[idx] = ItemMetrics{
				Key:           item.Key,
				Type:          item.Type,
				Summary:       item.Summary,
				Status:        item.CurrentStatus().Value,
				Priority:      item.Priority,
				Expedite:      s.isExpedite(item),
				StartedAt:     ds.Policy.StartedTime(item),
				StoppedAt:     ds.Policy.StoppedTime(item),
				CycleTimeDays: ds.Policy.CycleTimeDays(item),
				AgeDays:       ds.Policy.AgeDays(item, asOf),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) isExpedite(item *domain.WorkItem) bool {
	priority := strings.TrimSpace(s.settings.ExpeditePriority)
	return priority != "" && strings.EqualFold(item.Priority, priority)
}

// DailyView is one reconstructed day reduced to item keys.
type DailyView struct {
	Date          string   `json:"date"`
	ActiveKeys    []string `json:"active_keys"`
	CompletedKeys []string `json:"completed_keys"`
}

// DailySnapshots reconstructs work in progress for every date from start to end inclusive.
func (s *Service) DailySnapshots(ctx context.Context, start, end time.Time) ([]DailyView, error) {
	dateRange, err := boundedDateRange(start, end)
	if err != nil {
		return nil, err
	}
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}
	return dailyViews(ReconstructDaily(ds.Items, dateRange, ds.Policy)), nil
}

// MaxRangeDays caps how many dates one reconstruction may cover.
const MaxRangeDays = 3660

func boundedDateRange(start, end time.Time) (domain.DateRange, error) {
	dateRange, err := domain.NewDateRange(start, end)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("%w: %s after %s", ErrInvalidDateRange, formatDate(start), formatDate(end))
	}
	if dateRange.End.After(dateRange.Start.AddDate(0, 0, MaxRangeDays-1)) {
		return domain.DateRange{}, fmt.Errorf("%w: %s to %s spans more than %d days", ErrInvalidDateRange, formatDate(start), formatDate(end), MaxRangeDays)
	}
	return dateRange, nil
}

func dailyViews(snapshots []DailySnapshot) []DailyView {
	out := make([]DailyView, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, DailyView{
			Date:          formatDate(snapshot.Date),
			ActiveKeys:    snapshot.ActiveItems.Keys(),
			CompletedKeys: snapshot.CompletedItems.Keys(),
		})
	}
	return out
}

// ItemStateView is the blocked or stalled classification of one item on one date.
type ItemStateView struct {
	Key     string                     `json:"key"`
	Date    string                     `json:"date"`
	State   domain.StateKind           `json:"state"`
	Reasons []string                   `json:"reasons"`
	Detail  domain.BlockedStalledState `json:"detail"`
}

// ItemState classifies one item at the end of date.
func (s *Service) ItemState(ctx context.Context, key string, date time.Time) (ItemStateView, error) {
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return ItemStateView{}, err
	}
	item, ok := ds.Lookup(key)
	if !ok {
		if failure := ds.FailureFor(key); failure != nil {
			return ItemStateView{}, fmt.Errorf("item %q: %w", key, failure)
		}
		return ItemStateView{}, fmt.Errorf("item %q: %w", key, ErrNotFound)
	}
	state := s.classifier(ds).Evaluate(item, date, 0)
	return ItemStateView{
		Key:     item.Key,
		Date:    formatDate(domain.DateOf(date)),
		State:   state.Kind(),
		Reasons: state.Reasons(),
		Detail:  state,
	}, nil
}

func (s *Service) classifier(ds *Dataset) domain.BlockedStalledClassifier {
	return domain.BlockedStalledClassifier{
		Settings: s.settings.Blocked,
		Policy:   ds.Policy,
		Lookup:   ds.Lookup,
	}
}

// QualityReport scans every item for data-quality problems.
func (s *Service) QualityReport(ctx context.Context) (QualityReport, error) {
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return QualityReport{}, err
	}
	return s.scanner(ds).Scan(ds.Items), nil
}

func (s *Service) scanner(ds *Dataset) QualityScanner {
	return QualityScanner{
		Board:    ds.Board,
		Catalog:  ds.Catalog,
		Policy:   ds.Policy,
		Lookup:   ds.Lookup,
		Discards: ds.Discards,
		Workers:  s.settings.Workers,
	}
}

// ReportBoard identifies the board a report was measured against.
type ReportBoard struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Report bundles every output of one dataset load.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Board       ReportBoard      `json:"board"`
	Items       []ItemMetrics    `json:"items"`
	Daily       []DailyView      `json:"daily"`
	Quality     []QualityProblem `json:"quality"`
	Failures    []ItemFailure    `json:"failures"`
}

// Report derives metrics, daily snapshots and quality findings from a single dataset load.
func (s *Service) Report(ctx context.Context, start, end, asOf time.Time) (Report, error) {
	dateRange, err := boundedDateRange(start, end)
	if err != nil {
		return Report{}, err
	}
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return Report{}, err
	}
	items, err := s.metricsFor(ctx, ds, asOf)
	if err != nil {
		return Report{}, err
	}
	return Report{
		GeneratedAt: s.clock().UTC(),
		Board:       ReportBoard{ID: ds.Board.ID, Name: ds.Board.Name},
		Items:       items,
		Daily:       dailyViews(ReconstructDaily(ds.Items, dateRange, ds.Policy)),
		Quality:     s.scanner(ds).Scan(ds.Items).Problems(),
		Failures:    ds.Failures,
	}, nil
}

// ListImports lists recorded import batches, newest first.
func (s *Service) ListImports(ctx context.Context) ([]domain.ImportBatch, error) {
	batches, err := s.repo.ListImportBatches(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(batches, func(a, b domain.ImportBatch) int {
		return b.ImportedAt.Compare(a.ImportedAt)
	})
	return batches, nil
}
