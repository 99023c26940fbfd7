package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evanschultz/kanflow/internal/domain"
)

func TestImportSnapshotRecordsBatchAndExportsSorted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	snap := Snapshot{
		Version:  SnapshotVersion,
		Statuses: testStatuses(),
		Boards: []domain.Board{{
			ID:   7,
			Name: " Team Board ",
			Columns: []domain.BoardColumn{
				{Name: "Done", StatusIDs: []int{5}, Position: 1},
				{Name: "Doing", StatusIDs: []int{3}, Position: 0},
			},
		}},
		Items: []domain.ItemRecord{
			record("K-10", day(1), moved(day(2), "Ready", "In Progress")),
			record("K-9", day(1)),
		},
	}

	batch, err := svc.ImportSnapshot(context.Background(), snap, "export.json")
	if err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	if batch.ID != "batch-1" || batch.ItemCount != 2 || batch.Source != "export.json" {
		t.Fatalf("unexpected batch %#v", batch)
	}
	if repo.imports["K-10"] != "batch-1" || len(repo.batches) != 1 {
		t.Fatalf("expected records tagged with the batch, got %#v", repo.imports)
	}
	if board := repo.boards[7]; board.Name != "Team Board" || board.Columns[0].Name != "Doing" {
		t.Fatalf("expected normalized board, got %#v", board)
	}

	out, err := svc.ExportSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if out.Version != SnapshotVersion || !out.ExportedAt.Equal(day(20)) {
		t.Fatalf("unexpected export header %#v", out)
	}
	if len(out.Items) != 2 || out.Items[0].Key != "K-9" || out.Items[1].Key != "K-10" {
		t.Fatalf("unexpected export order %#v", out.Items)
	}
}

func TestSnapshotValidate(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
	}{
		{name: "version", snap: Snapshot{Version: "kan.snapshot.v1"}},
		{name: "conflicting status", snap: Snapshot{Statuses: []domain.Status{
			{ID: 1, Name: "Open", CategoryName: "To Do"},
			{ID: 2, Name: "Open", CategoryName: "Done"},
		}}},
		{name: "board name", snap: Snapshot{Boards: []domain.Board{{ID: 1}}}},
		{name: "duplicate board", snap: Snapshot{Boards: []domain.Board{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}}},
		{name: "empty key", snap: Snapshot{Items: []domain.ItemRecord{{CreatedAt: day(1)}}}},
		{name: "created at", snap: Snapshot{Items: []domain.ItemRecord{{Key: "K-1"}}}},
		{name: "duplicate key", snap: Snapshot{Items: []domain.ItemRecord{record("K-1", day(1)), record("K-1", day(2))}}},
		{name: "history time", snap: Snapshot{Items: []domain.ItemRecord{record("K-1", day(1), moved(time.Time{}, "Ready", "Done"))}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.snap.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("Validate() error = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}
