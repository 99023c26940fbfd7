package app

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/evanschultz/kanflow/internal/domain"
)

// day returns 09:00 UTC on the given day of January 2024.
func day(d int) time.Time {
	return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC)
}

func date(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string {
	return &s
}

func intPtr(v int) *int {
	return &v
}

func moved(at time.Time, from, to string) domain.HistoryRecord {
	return domain.HistoryRecord{
		Time: at,
		Changes: []domain.FieldChange{{
			Field:    domain.FieldStatus,
			OldValue: strPtr(from),
			NewValue: to,
		}},
	}
}

func flagged(at time.Time, on bool) domain.HistoryRecord {
	value := ""
	if on {
		value = "Impediment"
	}
	return domain.HistoryRecord{
		Time:    at,
		Changes: []domain.FieldChange{{Field: domain.FieldFlagged, NewValue: value}},
	}
}

func record(key string, created time.Time, history ...domain.HistoryRecord) domain.ItemRecord {
	return domain.ItemRecord{
		Key:       key,
		Type:      "Story",
		Summary:   "summary " + key,
		CreatedAt: created,
		History:   append([]domain.HistoryRecord{}, history...),
	}
}

func mustItem(t *testing.T, rec domain.ItemRecord) *domain.WorkItem {
	t.Helper()
	item, err := domain.NewWorkItem(rec)
	if err != nil {
		t.Fatalf("NewWorkItem(%q) error = %v", rec.Key, err)
	}
	return item
}

func testStatuses() []domain.Status {
	return []domain.Status{
		{ID: 1, Name: "Backlog", CategoryName: "To Do", CategoryID: 2},
		{ID: 2, Name: "Ready", CategoryName: "To Do", CategoryID: 2},
		{ID: 3, Name: "In Progress", CategoryName: "In Progress", CategoryID: 4},
		{ID: 4, Name: "Review", CategoryName: "In Progress", CategoryID: 4},
		{ID: 5, Name: "Done", CategoryName: "Done", CategoryID: 3},
		{ID: 9, Name: "Parked", CategoryName: "In Progress", CategoryID: 4},
	}
}

func testCatalog(t *testing.T) *domain.StatusCatalog {
	t.Helper()
	catalog, err := domain.NewStatusCatalog(testStatuses())
	if err != nil {
		t.Fatalf("NewStatusCatalog() error = %v", err)
	}
	return catalog
}

func testBoard(t *testing.T, id int) domain.Board {
	t.Helper()
	board, err := domain.NewBoard(id, "Team Board", []domain.BoardColumn{
		{Name: "Ready", StatusIDs: []int{2}, Position: 0},
		{Name: "Doing", StatusIDs: []int{3}, Position: 1},
		{Name: "Review", StatusIDs: []int{4}, Position: 2},
		{Name: "Done", StatusIDs: []int{5}, Position: 3},
	}, []int{1})
	if err != nil {
		t.Fatalf("NewBoard() error = %v", err)
	}
	return board
}

// statusPolicy starts on the first entry to In Progress and stops on the first entry to Done.
func statusPolicy() PolicySpec {
	return PolicySpec{
		Start: RuleSpec{Rule: RuleFirstTimeInStatus, Statuses: []string{"In Progress"}},
		Stop:  RuleSpec{Rule: RuleFirstTimeInStatus, Statuses: []string{"Done"}},
	}
}

func mustPolicy(t *testing.T, spec PolicySpec, catalog *domain.StatusCatalog) domain.CycleTimePolicy {
	t.Helper()
	policy, err := BuildPolicy(spec, catalog)
	if err != nil {
		t.Fatalf("BuildPolicy() error = %v", err)
	}
	return policy
}

type fakeRepo struct {
	records  map[string]domain.ItemRecord
	imports  map[string]string
	statuses map[int]domain.Status
	boards   map[int]domain.Board
	batches  []domain.ImportBatch
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:  map[string]domain.ItemRecord{},
		imports:  map[string]string{},
		statuses: map[int]domain.Status{},
		boards:   map[int]domain.Board{},
	}
}

func (f *fakeRepo) UpsertItemRecord(_ context.Context, rec domain.ItemRecord, importID string) error {
	f.records[rec.Key] = rec
	f.imports[rec.Key] = importID
	return nil
}

func (f *fakeRepo) GetItemRecord(_ context.Context, key string) (domain.ItemRecord, error) {
	rec, ok := f.records[key]
	if !ok {
		return domain.ItemRecord{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) ListItemRecords(context.Context) ([]domain.ItemRecord, error) {
	out := make([]domain.ItemRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.ItemRecord) int {
		return domain.CompareKeys(a.Key, b.Key)
	})
	return out, nil
}

func (f *fakeRepo) UpsertStatus(_ context.Context, status domain.Status) error {
	f.statuses[status.ID] = status
	return nil
}

func (f *fakeRepo) ListStatuses(context.Context) ([]domain.Status, error) {
	out := make([]domain.Status, 0, len(f.statuses))
	for _, status := range f.statuses {
		out = append(out, status)
	}
	slices.SortFunc(out, func(a, b domain.Status) int { return a.ID - b.ID })
	return out, nil
}

func (f *fakeRepo) UpsertBoard(_ context.Context, board domain.Board) error {
	f.boards[board.ID] = board
	return nil
}

func (f *fakeRepo) ListBoards(context.Context) ([]domain.Board, error) {
	out := make([]domain.Board, 0, len(f.boards))
	for _, board := range f.boards {
		out = append(out, board)
	}
	slices.SortFunc(out, func(a, b domain.Board) int { return a.ID - b.ID })
	return out, nil
}

func (f *fakeRepo) CreateImportBatch(_ context.Context, batch domain.ImportBatch) error {
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeRepo) ListImportBatches(context.Context) ([]domain.ImportBatch, error) {
	return slices.Clone(f.batches), nil
}

// seededRepo returns a repo holding the test statuses and one board.
func seededRepo(t *testing.T) *fakeRepo {
	t.Helper()
	repo := newFakeRepo()
	for _, status := range testStatuses() {
		repo.statuses[status.ID] = status
	}
	board := testBoard(t, 7)
	repo.boards[board.ID] = board
	return repo
}

func domainResolution(at time.Time, value string) domain.HistoryRecord {
	return domain.HistoryRecord{
		Time:    at,
		Changes: []domain.FieldChange{{Field: domain.FieldResolution, NewValue: value}},
	}
}
